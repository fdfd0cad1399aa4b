// Package wal implements the write-ahead log: a newline-delimited
// stream of CRC-framed JSON records that makes every mutation
// crash-durable before the engine acknowledges it, and that tolerates
// a torn trailing record on replay.
//
// On-disk form, one record per line:
//
//	{"hash": <u32>, "entry": {"op": "put"|"delete", "key": <string>, "value"?: <u32>}}
//
// hash is the CRC-32 (internal/checksum) of the canonical JSON
// serialization of the entry object alone (not the whole line).
package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/howenyap/kv/internal/checksum"
	"github.com/howenyap/kv/internal/dbformat"
	"github.com/howenyap/kv/internal/logging"
	"github.com/howenyap/kv/internal/vfs"
)

// wireEntry is the WAL's op-discriminated entry shape.
type wireEntry struct {
	Op    string  `json:"op"`
	Key   string  `json:"key"`
	Value *uint32 `json:"value,omitempty"`
}

// wireRecord is one framed WAL line.
type wireRecord struct {
	Hash  uint32    `json:"hash"`
	Entry wireEntry `json:"entry"`
}

func toWireEntry(e dbformat.Entry) wireEntry {
	w := wireEntry{Key: e.Key}
	switch e.Op {
	case dbformat.OpPut:
		w.Op = "put"
		v := e.Value
		w.Value = &v
	case dbformat.OpDelete:
		w.Op = "delete"
	}
	return w
}

func (w wireEntry) toEntry() (dbformat.Entry, error) {
	switch w.Op {
	case "put":
		if w.Value == nil {
			return dbformat.Entry{}, fmt.Errorf("wal: put record missing value")
		}
		return dbformat.NewPut(w.Key, *w.Value), nil
	case "delete":
		return dbformat.NewDelete(w.Key), nil
	default:
		return dbformat.Entry{}, fmt.Errorf("wal: unknown op %q", w.Op)
	}
}

// WAL is the write-ahead log for a single engine directory.
type WAL struct {
	fs     vfs.FS
	path   string
	file   vfs.WritableFile
	logger logging.Logger
}

// Open ensures the WAL file exists and opens it for appending. It does
// not replay — call Replay separately so the engine controls when
// recovered entries are installed into the memtable.
func Open(fs vfs.FS, path string, logger logging.Logger) (*WAL, error) {
	logger = logging.OrDefault(logger)
	f, err := fs.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{fs: fs, path: path, file: f, logger: logger}, nil
}

// AppendPut durably appends a Put record.
func (w *WAL) AppendPut(key string, value uint32) error {
	return w.append(dbformat.NewPut(key, value))
}

// AppendDelete durably appends a Delete (tombstone) record.
func (w *WAL) AppendDelete(key string) error {
	return w.append(dbformat.NewDelete(key))
}

// append serializes, frames, writes, and fsyncs entry before returning.
// The mutation is acknowledged only once this returns nil — that is
// the WAL's whole durability contract.
func (w *WAL) append(e dbformat.Entry) error {
	wire := toWireEntry(e)
	entryJSON, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("wal: marshal entry: %w", err)
	}
	rec := wireRecord{Hash: checksum.Value(entryJSON), Entry: wire}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("wal: marshal record: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: fsync: %w", err)
	}
	return nil
}

// Replay reads the log from the start and returns every validated
// record in commit order. On the first blank-vs-malformed line or
// checksum mismatch, it stops and discards the remainder — the
// torn-tail rule. Earlier records are still honored.
func Replay(fs vfs.FS, path string, logger logging.Logger) ([]dbformat.Entry, error) {
	logger = logging.OrDefault(logger)
	r, err := fs.OpenRead(path)
	if err != nil {
		return nil, fmt.Errorf("wal: open for replay %s: %w", path, err)
	}
	defer r.Close()

	var entries []dbformat.Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec wireRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warnf("%storn WAL record at entry %d: %v", logging.NSWAL, len(entries), err)
			break
		}

		entryJSON, err := json.Marshal(rec.Entry)
		if err != nil {
			logger.Warnf("%sunable to re-serialize WAL entry %d: %v", logging.NSWAL, len(entries), err)
			break
		}
		if !checksum.Verify(entryJSON, rec.Hash) {
			logger.Warnf("%schecksum mismatch at entry %d, stopping replay", logging.NSWAL, len(entries))
			break
		}

		entry, err := rec.Entry.toEntry()
		if err != nil {
			logger.Warnf("%sinvalid WAL entry %d: %v", logging.NSWAL, len(entries), err)
			break
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		logger.Warnf("%sread error during replay, truncating at %d entries: %v", logging.NSWAL, len(entries), err)
	}
	return entries, nil
}

// Truncate discards all WAL content. Called by the engine only after a
// flush has durably promoted the memtable into a manifest-referenced
// SST — once that happens, the WAL's job (recovering un-flushed
// mutations) has nothing left to do.
func (w *WAL) Truncate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close before truncate: %w", err)
	}
	f, err := w.fs.Create(w.path)
	if err != nil {
		return fmt.Errorf("wal: recreate %s: %w", w.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("wal: fsync after truncate: %w", err)
	}
	w.file = f
	return nil
}

// Close releases the underlying file handle.
func (w *WAL) Close() error {
	return w.file.Close()
}
