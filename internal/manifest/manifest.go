// Package manifest implements the ordered list of live SST file names.
// Recency is positional: the last entry is the youngest SST. Every
// update — from flush or from compaction — goes through the same
// atomic swap protocol: write a temp file, fsync it, rename it over
// the live manifest, then fsync the enclosing directory so the rename
// itself survives a crash.
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/howenyap/kv/internal/vfs"
)

// FileName is the fixed name of the live manifest file within an
// engine's SST directory.
const FileName = "manifest.txt"

// tmpName is the transient sibling used during the atomic swap.
const tmpName = "manifest.tmp"

// sstPrefix/sstSuffix define the canonical SST file naming scheme,
// sst-<id>.json, id starting at 1.
const (
	sstPrefix = "sst-"
	sstSuffix = ".json"
)

// SSTFileName returns the canonical on-disk name for SST id.
func SSTFileName(id uint64) string {
	return fmt.Sprintf("%s%d%s", sstPrefix, id, sstSuffix)
}

// ParseSSTID extracts the numeric id from a canonical SST file name.
// The second return is false if name doesn't match the scheme.
func ParseSSTID(name string) (uint64, bool) {
	if !strings.HasPrefix(name, sstPrefix) || !strings.HasSuffix(name, sstSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, sstPrefix), sstSuffix)
	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Manifest is the in-memory copy of the live SST list, oldest-first:
// authoritative between updates while the writer lock is held, kept
// equal to the on-disk file at every quiescent point.
type Manifest struct {
	entries []string
}

// Empty returns a manifest with no SSTs.
func Empty() *Manifest {
	return &Manifest{}
}

// Load reads path and parses its newline-separated SST names. Both a
// trailing newline and its absence are accepted. If path does not
// exist, an empty manifest is returned so startup can create one.
func Load(fs vfs.FS, path string) (*Manifest, error) {
	if !fs.Exists(path) {
		return Empty(), nil
	}
	r, err := fs.OpenRead(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}

	var entries []string
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		entries = append(entries, string(line))
	}
	return &Manifest{entries: entries}, nil
}

// Entries returns the live SST names, oldest-first. The slice is owned
// by the caller to read; mutate via Append/Replace instead.
func (m *Manifest) Entries() []string {
	return append([]string(nil), m.entries...)
}

// Len returns the number of live SSTs.
func (m *Manifest) Len() int { return len(m.entries) }

// NextID returns max(id in manifest) + 1, or 1 if the manifest is
// empty — the next SST id to allocate for a flush or compaction
// output.
func (m *Manifest) NextID() uint64 {
	var max uint64
	for _, e := range m.entries {
		if id, ok := ParseSSTID(e); ok && id > max {
			max = id
		}
	}
	return max + 1
}

// Append adds name as the new youngest SST and atomically persists the
// result to path. Used on the flush path.
func (m *Manifest) Append(fs vfs.FS, dir, path, name string) error {
	next := append(append([]string(nil), m.entries...), name)
	if err := writeAtomic(fs, dir, path, next); err != nil {
		return err
	}
	m.entries = next
	return nil
}

// Replace atomically swaps the entire live SST list. Used on the
// compaction path.
func (m *Manifest) Replace(fs vfs.FS, dir, path string, names []string) error {
	next := append([]string(nil), names...)
	if err := writeAtomic(fs, dir, path, next); err != nil {
		return err
	}
	m.entries = next
	return nil
}

// EnsureExists creates an empty manifest file at path if none exists
// yet, following the same atomic protocol as any other update so a
// crash mid-creation never leaves a half-written manifest.
func EnsureExists(fs vfs.FS, dir, path string) error {
	if fs.Exists(path) {
		return nil
	}
	return writeAtomic(fs, dir, path, nil)
}

// writeAtomic implements the four-step swap protocol: temp write,
// fsync temp, rename over the live file, fsync the directory.
func writeAtomic(fs vfs.FS, dir, path string, entries []string) error {
	tmpPath := filepath.Join(dir, tmpName)

	f, err := fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("manifest: create temp %s: %w", tmpPath, err)
	}
	content := strings.Join(entries, "\n")
	if _, err := f.Write([]byte(content)); err != nil {
		f.Close()
		return fmt.Errorf("manifest: write temp %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("manifest: fsync temp %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("manifest: close temp %s: %w", tmpPath, err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("manifest: rename %s -> %s: %w", tmpPath, path, err)
	}
	if err := fs.SyncDir(dir); err != nil {
		return fmt.Errorf("manifest: fsync dir %s: %w", dir, err)
	}
	return nil
}
