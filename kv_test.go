package kv_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/howenyap/kv"
)

func open(t *testing.T, dir string, flushThreshold, compactionThreshold int) *kv.DB {
	t.Helper()
	opts := kv.DefaultOptions(dir)
	opts.FlushThreshold = flushThreshold
	opts.CompactionThreshold = compactionThreshold
	db, err := kv.Open(opts)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func TestEmptyStart(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 2000, 10000)
	defer db.Close()

	_, found, err := db.Get("anything")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("Get() on an empty store found a value")
	}
}

func TestPutThenGet(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 2000, 10000)
	defer db.Close()

	if err := db.Put("k", 42); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	value, found, err := db.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || value != 42 {
		t.Fatalf("Get(k) = %d, %v, want 42, true", value, found)
	}
}

func TestDeleteHidesValue(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 2000, 10000)
	defer db.Close()

	if err := db.Put("k", 1); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := db.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, found, err := db.Get("k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found {
		t.Fatal("Get() after Delete() found a value")
	}
}

// TestFlushBoundary writes exactly flushThreshold distinct keys and
// checks that every one survives the flush this triggers, including
// the key that crosses the threshold.
func TestFlushBoundary(t *testing.T) {
	dir := t.TempDir()
	const threshold = 8
	db := open(t, dir, threshold, 10000)
	defer db.Close()

	for i := range threshold + 2 {
		key := fmt.Sprintf("k%d", i)
		if err := db.Put(key, uint32(i)); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	for i := range threshold + 2 {
		key := fmt.Sprintf("k%d", i)
		value, found, err := db.Get(key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if !found || value != uint32(i) {
			t.Fatalf("Get(%s) = %d, %v, want %d, true", key, value, found, i)
		}
	}
}

// TestRecoveryBeforeFlush verifies that mutations still sitting in the
// memtable (never flushed) survive a close/reopen via WAL replay.
func TestRecoveryBeforeFlush(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 2000, 10000)

	const n = 500
	for i := range n {
		key := fmt.Sprintf("k%d", i)
		if err := db.Put(key, uint32(i)); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db2 := open(t, dir, 2000, 10000)
	defer db2.Close()
	for i := range n {
		key := fmt.Sprintf("k%d", i)
		value, found, err := db2.Get(key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if !found || value != uint32(i) {
			t.Fatalf("Get(%s) after reopen = %d, %v, want %d, true", key, value, found, i)
		}
	}
}

// TestOverwriteAcrossFlush checks that a put after a flush correctly
// shadows the flushed SST's value for the same key.
func TestOverwriteAcrossFlush(t *testing.T) {
	dir := t.TempDir()
	const threshold = 4
	db := open(t, dir, threshold, 10000)
	defer db.Close()

	for i := range threshold {
		key := fmt.Sprintf("k%d", i)
		if err := db.Put(key, 1); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	// The flush has now run (threshold distinct keys reached).
	if err := db.Put("k0", 99); err != nil {
		t.Fatalf("Put(k0) error = %v", err)
	}
	value, found, err := db.Get("k0")
	if err != nil {
		t.Fatalf("Get(k0) error = %v", err)
	}
	if !found || value != 99 {
		t.Fatalf("Get(k0) = %d, %v, want 99, true (memtable overwrite must shadow the flushed SST)", value, found)
	}
}

// TestDeleteAcrossFlush checks that a delete after a flush correctly
// shadows the flushed SST's value for the same key.
func TestDeleteAcrossFlush(t *testing.T) {
	dir := t.TempDir()
	const threshold = 4
	db := open(t, dir, threshold, 10000)
	defer db.Close()

	for i := range threshold {
		key := fmt.Sprintf("k%d", i)
		if err := db.Put(key, 1); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	if err := db.Delete("k0"); err != nil {
		t.Fatalf("Delete(k0) error = %v", err)
	}
	_, found, err := db.Get("k0")
	if err != nil {
		t.Fatalf("Get(k0) error = %v", err)
	}
	if found {
		t.Fatal("Get(k0) found a value after a delete that post-dates its flushed SST")
	}
}

// TestCompactionDropsTombstones drives enough mutations across several
// flushes to trigger a compaction, then checks both that live keys
// survive and that deleted keys stay gone (tombstones are dropped only
// once every live SST participates in the merge).
func TestCompactionDropsTombstones(t *testing.T) {
	dir := t.TempDir()
	const flushThreshold = 10
	const compactionThreshold = 30
	db := open(t, dir, flushThreshold, compactionThreshold)
	defer db.Close()

	for i := range 10 {
		key := fmt.Sprintf("k%d", i)
		if err := db.Put(key, uint32(i)); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	for i := range 5 {
		key := fmt.Sprintf("k%d", i)
		if err := db.Delete(key); err != nil {
			t.Fatalf("Delete(%s) error = %v", key, err)
		}
	}
	// Enough further mutations to cross compactionThreshold.
	for i := 10; i < 25; i++ {
		key := fmt.Sprintf("j%d", i)
		if err := db.Put(key, uint32(i)); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	for i := range 5 {
		key := fmt.Sprintf("k%d", i)
		_, found, err := db.Get(key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if found {
			t.Fatalf("Get(%s) found a value, want deleted after compaction", key)
		}
	}
	for i := 5; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		value, found, err := db.Get(key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if !found || value != uint32(i) {
			t.Fatalf("Get(%s) = %d, %v, want %d, true", key, value, found, i)
		}
	}
}

// TestManifestSurvivesOrphanCleanup recreates a scenario where an SST
// file exists on disk without being referenced by the manifest — as if
// a crash occurred between writing the SST and publishing it — and
// checks that a reopen neither errors nor exposes the orphan's data.
func TestManifestSurvivesOrphanCleanup(t *testing.T) {
	dir := t.TempDir()
	db := open(t, dir, 4, 10000)
	for i := range 4 {
		key := fmt.Sprintf("k%d", i)
		if err := db.Put(key, uint32(i)); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Drop an unreferenced SST-shaped file into the sst directory.
	orphan := filepath.Join(dir, "sst", "sst-999.json")
	if err := writeOrphan(orphan); err != nil {
		t.Fatalf("writeOrphan() error = %v", err)
	}

	db2 := open(t, dir, 4, 10000)
	defer db2.Close()
	for i := range 4 {
		key := fmt.Sprintf("k%d", i)
		value, found, err := db2.Get(key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		if !found || value != uint32(i) {
			t.Fatalf("Get(%s) = %d, %v, want %d, true", key, value, found, i)
		}
	}
	if _, found, _ := db2.Get("orphan-key"); found {
		t.Fatal("Get() exposed data from an orphaned, unreferenced SST")
	}
}

func writeOrphan(path string) error {
	content := []byte(`[{"key":"orphan-key","value":1}]`)
	return os.WriteFile(path, content, 0o644)
}
