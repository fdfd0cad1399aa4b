package kv

import "github.com/howenyap/kv/internal/engine"

// Logger is the logging interface accepted by Options.
type Logger = engine.Logger

// DB is the public handle to an open storage engine.
type DB struct {
	eng *engine.Engine
}

// Options configures a DB. See DefaultOptions for the spec-mandated
// defaults.
type Options = engine.Options

// DefaultOptions returns the default configuration rooted at dir:
// FlushThreshold 2000, CompactionThreshold 10000.
func DefaultOptions(dir string) Options {
	return engine.DefaultOptions(dir)
}

// Open runs the engine's startup/recovery sequence and returns a ready
// DB: directories and manifest are created if absent, orphaned SSTs
// are deleted, and the WAL is replayed into the memtable.
func Open(opts Options) (*DB, error) {
	eng, err := engine.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DB{eng: eng}, nil
}

// Close releases the engine's file handles.
func (db *DB) Close() error {
	return db.eng.Close()
}

// Put upserts key to value.
func (db *DB) Put(key string, value uint32) error {
	return db.eng.Put(key, value)
}

// Delete tombstones key. A subsequent Get returns (0, false, nil)
// until a later Put makes it present again.
func (db *DB) Delete(key string) error {
	return db.eng.Delete(key)
}

// Get returns (value, true, nil) if key is present, (0, false, nil) if
// it is absent or was deleted, and a non-nil error only on I/O or
// parse failure. Not-found is never an error.
func (db *DB) Get(key string) (uint32, bool, error) {
	return db.eng.Get(key)
}
