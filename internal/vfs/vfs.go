// Package vfs provides a small filesystem abstraction so the engine's
// durability protocol (temp-file write, fsync, rename, directory fsync)
// can be exercised in tests against a real directory without the rest
// of the engine caring whether it's talking to os.File or a stand-in.
//
// It is a filesystem seam trimmed to single-tier needs: no
// random-access reads, no file locks, no direct IO.
package vfs

import (
	"io"
	"os"
	"path/filepath"
)

// FS is the filesystem surface the engine depends on.
type FS interface {
	// Create creates (or truncates) a writable file.
	Create(name string) (WritableFile, error)

	// OpenAppend opens a file for appending, creating it if absent.
	OpenAppend(name string) (WritableFile, error)

	// OpenRead opens an existing file for sequential reading.
	OpenRead(name string) (io.ReadCloser, error)

	// Rename atomically replaces newname with oldname's contents.
	Rename(oldname, newname string) error

	// Remove deletes a file. Not-exists is not an error.
	Remove(name string) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// Exists reports whether name exists.
	Exists(name string) bool

	// ListDir lists the entries (file names only) directly under path.
	ListDir(path string) ([]string, error)

	// SyncDir fsyncs the directory at path so that a prior rename or
	// file creation within it is durable across a crash.
	SyncDir(path string) error
}

// WritableFile is an append/truncate-capable file with an explicit Sync.
type WritableFile interface {
	io.Writer
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// OS is the real-filesystem implementation of FS.
type OS struct{}

// NewOS returns the real OS filesystem.
func NewOS() FS { return OS{} }

func (OS) Create(name string) (WritableFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (OS) OpenAppend(name string) (WritableFile, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (OS) OpenRead(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

func (OS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

func (OS) Remove(name string) error {
	err := os.Remove(name)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (OS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (OS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (OS) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// SyncDir fsyncs the directory itself so a rename or file creation
// within it survives a crash. Opening a directory for fsync is a
// POSIX idiom; it is a no-op on platforms that reject it (e.g.
// Windows), where directory metadata durability is handled by the OS.
func (OS) SyncDir(path string) error {
	d, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		if pathErr, ok := err.(*os.PathError); ok && pathErr.Err == os.ErrInvalid {
			return nil
		}
		return err
	}
	return nil
}
