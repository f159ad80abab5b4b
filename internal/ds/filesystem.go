package ds

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"
)

// WritableFile is a file opened for writing by the transfer executor.
type WritableFile interface {
	io.Writer
	io.Closer
	Name() string
	Sync() error
}

// FilesystemManager abstracts local filesystem access for the reconcilers.
type FilesystemManager interface {
	// Stat returns fresh file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// CreateTemp creates a new temporary file in dir.
	CreateTemp(dir string, pattern string) (WritableFile, error)

	// Rename atomically moves oldPath to newPath.
	Rename(oldPath, newPath string) error

	// Remove deletes a file.
	Remove(path string) error

	// Chtimes sets the modification time of a file.
	Chtimes(path string, mtime time.Time) error

	// Checksum returns the hex MD5 digest of a file's content.
	Checksum(path string) (string, error)

	// IsIgnored reports whether path, inside root, matches an ignore rule.
	IsIgnored(path string, root string, isDir bool) (bool, error)
}

// LocalMeta is the current state of a local file or directory.
type LocalMeta struct {
	Path       string
	IsDir      bool
	Size       int64
	ModifiedAt time.Time
}

// StatLocal returns the metadata for path, or nil when nothing exists there.
func StatLocal(fsmgr FilesystemManager, path string) (*LocalMeta, error) {
	info, err := fsmgr.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return NewLocalMeta(path, info), nil
}

// NewLocalMeta builds LocalMeta from file info.
func NewLocalMeta(path string, info fs.FileInfo) *LocalMeta {
	meta := &LocalMeta{
		Path:       path,
		IsDir:      info.IsDir(),
		ModifiedAt: info.ModTime(),
	}
	if !meta.IsDir {
		meta.Size = info.Size()
	}
	return meta
}

// missingErr describes why a path that was expected to exist could not be
// examined.
func missingErr(path string, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("%s: %w", path, fs.ErrNotExist)
}
