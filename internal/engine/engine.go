// Package engine implements the storage engine facade: it composes the
// WAL, memtable, SST files, manifest, and compactor behind
// put/get/delete, owns the negative cache, and runs the startup
// recovery sequence. A single outer sync.RWMutex serializes writers
// against readers and against each other, while the negative cache
// carries its own independent lock.
package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/howenyap/kv/internal/compaction"
	"github.com/howenyap/kv/internal/logging"
	"github.com/howenyap/kv/internal/manifest"
	"github.com/howenyap/kv/internal/memtable"
	"github.com/howenyap/kv/internal/negcache"
	"github.com/howenyap/kv/internal/sstable"
	"github.com/howenyap/kv/internal/vfs"
	"github.com/howenyap/kv/internal/wal"
)

// Error taxonomy. Checksum/torn-record handling never reaches this
// layer — wal.Replay tolerates it internally.
var (
	// ErrIO marks a filesystem or syscall failure.
	ErrIO = errors.New("engine: io error")
	// ErrJSON marks a serialization/parse failure outside WAL replay.
	ErrJSON = errors.New("engine: json error")
)

// Logger is re-exported so callers outside this module's internal
// tree can still reference the logging interface through Options.
type Logger = logging.Logger

// Options configures an Engine, following the usual
// Options-struct-plus-DefaultOptions convention.
type Options struct {
	// Dir is the engine's working directory; wal/ and sst/ are created
	// beneath it.
	Dir string

	// FlushThreshold is the distinct-key count that triggers a flush
	// (default 2000).
	FlushThreshold int

	// CompactionThreshold is the mutation count that triggers a
	// compaction (default 10000).
	CompactionThreshold int

	// Logger receives engine diagnostics. Defaults to a WARN-level
	// stderr logger if nil.
	Logger logging.Logger
}

// DefaultOptions returns the default thresholds for dir.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:                 dir,
		FlushThreshold:      2000,
		CompactionThreshold: 10000,
	}
}

// Engine is the storage engine facade.
type Engine struct {
	fs     vfs.FS
	logger logging.Logger

	walPath      string
	sstDir       string
	manifestPath string

	flushThreshold      int
	compactionThreshold int

	// mu is the single outer readers-writer lock guarding mem and man
	// together, so flush/compaction (which mutate both) appear atomic
	// to readers.
	mu  sync.RWMutex
	mem *memtable.MemTable
	man *manifest.Manifest
	wal *wal.WAL

	// mutationCount drives the compaction trigger; it resets to zero
	// after a successful compaction.
	mutationCount uint64

	// neg has its own lock, independent of mu, since readers mutate it
	// on a confirmed miss without needing to exclude other readers or
	// the writer.
	neg *negcache.Cache
}

// Open runs the startup sequence and returns a ready Engine: ensure
// directories/manifest/WAL exist, delete orphaned SSTs, and replay the
// WAL into a fresh memtable.
func Open(opts Options) (*Engine, error) {
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = 2000
	}
	if opts.CompactionThreshold <= 0 {
		opts.CompactionThreshold = 10000
	}
	logger := logging.OrDefault(opts.Logger)

	fs := vfs.NewOS()
	walDir := filepath.Join(opts.Dir, "wal")
	sstDir := filepath.Join(opts.Dir, "sst")
	walPath := filepath.Join(walDir, "wal.db")
	manifestPath := filepath.Join(sstDir, manifest.FileName)

	if err := fs.MkdirAll(walDir); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrIO, walDir, err)
	}
	if err := fs.MkdirAll(sstDir); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", ErrIO, sstDir, err)
	}

	// Step 1: ensure manifest exists.
	if err := manifest.EnsureExists(fs, sstDir, manifestPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	// Step 2: read manifest into manifest_cache.
	man, err := manifest.Load(fs, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	// Step 3: delete SSTs in the directory not referenced by the
	// manifest — orphans left behind by a partial flush/compaction.
	if err := cleanOrphans(fs, sstDir, man, logger); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	// Step 4: ensure WAL exists and open it for appending.
	w, err := wal.Open(fs, walPath, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	// Step 5: replay WAL, installing every replayed entry into a fresh
	// memtable. Replay stops at the first torn record; earlier
	// entries are honored.
	mem := memtable.New()
	recovered, err := wal.Replay(fs, walPath, logger)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	for _, e := range recovered {
		mem.Install(e)
	}
	logger.Infof("%srecovered %d WAL entries", logging.NSEngine, len(recovered))

	return &Engine{
		fs:                  fs,
		logger:              logger,
		walPath:             walPath,
		sstDir:              sstDir,
		manifestPath:        manifestPath,
		flushThreshold:      opts.FlushThreshold,
		compactionThreshold: opts.CompactionThreshold,
		mem:                 mem,
		man:                 man,
		wal:                 w,
		neg:                 negcache.New(),
	}, nil
}

// cleanOrphans deletes any ".json" file in sstDir not listed in man.
func cleanOrphans(fs vfs.FS, sstDir string, man *manifest.Manifest, logger logging.Logger) error {
	names, err := fs.ListDir(sstDir)
	if err != nil {
		return err
	}
	live := make(map[string]struct{}, man.Len())
	for _, e := range man.Entries() {
		live[e] = struct{}{}
	}
	for _, name := range names {
		if filepath.Ext(name) != ".json" {
			continue
		}
		if _, ok := live[name]; ok {
			continue
		}
		logger.Warnf("%sdeleting orphan SST %s", logging.NSEngine, name)
		if err := fs.Remove(filepath.Join(sstDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the WAL file handle. It performs no flush: any
// pending memtable content is recoverable from the WAL on next Open.
func (e *Engine) Close() error {
	return e.wal.Close()
}

// Put upserts key to value.
func (e *Engine) Put(key string, value uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.AppendPut(key, value); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.mem.Put(key, value)
	e.mutationCount++
	e.neg.Remove(key)

	return e.maybeFlushAndCompact()
}

// Delete tombstones key.
func (e *Engine) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.wal.AppendDelete(key); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.mem.Delete(key)
	e.mutationCount++
	e.neg.Insert(key)

	return e.maybeFlushAndCompact()
}

// Get returns (value, true, nil) if key is present, (0, false, nil) if
// it is absent or tombstoned, and a non-nil error only on I/O or parse
// failure — not-found is never an error.
func (e *Engine) Get(key string) (uint32, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch status, value := e.mem.Lookup(key); status {
	case memtable.Found:
		return value, true, nil
	case memtable.Tombstoned:
		return 0, false, nil
	}

	if e.neg.Contains(key) {
		return 0, false, nil
	}

	// Scan the live SST set newest-first.
	entries := e.man.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		name := entries[i]
		entry, found, err := sstable.Find(e.fs, filepath.Join(e.sstDir, name), key)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %v", ErrJSON, err)
		}
		if !found {
			continue
		}
		if entry.IsDelete() {
			return 0, false, nil
		}
		return entry.Value, true, nil
	}

	e.neg.Insert(key)
	return 0, false, nil
}

// maybeFlushAndCompact runs the flush and compaction trigger checks.
// Caller must hold mu for writing.
func (e *Engine) maybeFlushAndCompact() error {
	if e.mem.Size() >= e.flushThreshold {
		if err := e.flush(); err != nil {
			return err
		}
	}
	if e.mutationCount >= uint64(e.compactionThreshold) {
		if err := e.compact(); err != nil {
			return err
		}
	}
	return nil
}

// flush drains the memtable into a new SST, publishes it via the
// manifest, and truncates the WAL. Caller must hold mu for writing.
func (e *Engine) flush() error {
	id := e.man.NextID()
	name := manifest.SSTFileName(id)
	path := filepath.Join(e.sstDir, name)

	entries := e.mem.DrainSorted()
	if err := sstable.Write(e.fs, path, entries); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	e.logger.Infof("%sflushed %d entries to %s", logging.NSEngine, len(entries), name)

	if err := e.man.Append(e.fs, e.sstDir, e.manifestPath, name); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := e.wal.Truncate(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// compact performs the full k-way merge of every live SST into a fresh
// generation, dropping tombstones, then publishes the new SST list and
// deletes the superseded files. Caller must hold mu for writing.
func (e *Engine) compact() error {
	entries := e.man.Entries()
	nextID := e.man.NextID()

	newNames, err := compaction.Merge(e.fs, e.sstDir, entries, nextID, e.flushThreshold)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	if err := e.man.Replace(e.fs, e.sstDir, e.manifestPath, newNames); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	for _, old := range entries {
		if err := e.fs.Remove(filepath.Join(e.sstDir, old)); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}

	e.logger.Infof("%scompacted %d SSTs into %d", logging.NSEngine, len(entries), len(newNames))
	e.mutationCount = 0
	return nil
}
