// Package sstable implements the on-disk sorted-string table format: a
// JSON array of entries sorted ascending by key, with at most one entry
// per key. SST integrity does not rely on an embedded checksum (unlike
// the WAL) — it is derived from the atomic-write-plus-directory-fsync
// protocol the manifest swap uses, so any SST fully referenced by the
// manifest is trusted as written.
package sstable

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/howenyap/kv/internal/dbformat"
	"github.com/howenyap/kv/internal/vfs"
)

// wireRecord is one SST array element: a Put carries {"key","value"};
// a Delete carries {"key","deleted":true}.
type wireRecord struct {
	Key     string  `json:"key"`
	Value   *uint32 `json:"value,omitempty"`
	Deleted bool    `json:"deleted,omitempty"`
}

func toWireRecord(e dbformat.Entry) wireRecord {
	if e.IsDelete() {
		return wireRecord{Key: e.Key, Deleted: true}
	}
	v := e.Value
	return wireRecord{Key: e.Key, Value: &v}
}

func (w wireRecord) toEntry() (dbformat.Entry, error) {
	switch {
	case w.Deleted:
		return dbformat.NewDelete(w.Key), nil
	case w.Value != nil:
		return dbformat.NewPut(w.Key, *w.Value), nil
	default:
		return dbformat.Entry{}, fmt.Errorf("sstable: record %q has neither value nor deleted", w.Key)
	}
}

// Write serializes entries (already sorted ascending by key, at most
// one per key — the caller's responsibility) to path as a JSON array,
// then flushes and fsyncs the file. Writing an empty SST is refused:
// no empty SSTs are ever created.
func Write(fs vfs.FS, path string, entries []dbformat.Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("sstable: refusing to write empty SST %s", path)
	}

	wire := make([]wireRecord, len(entries))
	for i, e := range entries {
		wire[i] = toWireRecord(e)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("sstable: marshal %s: %w", path, err)
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("sstable: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("sstable: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sstable: fsync %s: %w", path, err)
	}
	return nil
}

// Load reads and parses an entire SST file, returning its entries in
// on-disk (ascending key) order.
func Load(fs vfs.FS, path string) ([]dbformat.Entry, error) {
	r, err := fs.OpenRead(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sstable: read %s: %w", path, err)
	}

	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("sstable: parse %s: %w", path, err)
	}

	entries := make([]dbformat.Entry, len(wire))
	for i, w := range wire {
		e, err := w.toEntry()
		if err != nil {
			return nil, fmt.Errorf("sstable: %s: %w", path, err)
		}
		entries[i] = e
	}
	return entries, nil
}

// Find linearly scans path for key, returning the matching entry and
// true if present. Used by the engine's newest-first SST scan (spec
// §4.6): first match in a single SST wins, since keys are unique
// within one file.
func Find(fs vfs.FS, path string, key string) (dbformat.Entry, bool, error) {
	entries, err := Load(fs, path)
	if err != nil {
		return dbformat.Entry{}, false, err
	}
	for _, e := range entries {
		if e.Key == key {
			return e, true, nil
		}
	}
	return dbformat.Entry{}, false, nil
}
