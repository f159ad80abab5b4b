package testutil

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"drivesync/internal/ds"
)

// WriteLocalFile writes content to root/rel, creating parents, and sets its
// modification time to mtime.
func WriteLocalFile(t *testing.T, root, rel string, content []byte, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("setting mtime of %s: %v", path, err)
	}
	return path
}

// MkdirLocal creates root/rel and any missing parents.
func MkdirLocal(t *testing.T, root, rel string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	return path
}

// ReadLocalFile returns the content of root/rel.
func ReadLocalFile(t *testing.T, root, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("reading %s: %v", rel, err)
	}
	return data
}

// LocalModTime returns the modification time of root/rel.
func LocalModTime(t *testing.T, root, rel string) time.Time {
	t.Helper()
	info, err := os.Stat(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("stat %s: %v", rel, err)
	}
	return info.ModTime()
}

// ListLocalTree returns every path under root, relative and slash-separated.
// Directories end in "/".
func ListLocalTree(t *testing.T, root string) []string {
	t.Helper()
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			rel += "/"
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", root, err)
	}
	return paths
}

// FaultyFilesystem wraps a FilesystemManager and fails Open, CreateTemp,
// Rename and MkdirAll for selected paths.
type FaultyFilesystem struct {
	ds.FilesystemManager

	mu       sync.Mutex
	failures map[string]error
}

// NewFaultyFilesystem wraps inner.
func NewFaultyFilesystem(inner ds.FilesystemManager) *FaultyFilesystem {
	return &FaultyFilesystem{FilesystemManager: inner, failures: make(map[string]error)}
}

// FailOn makes operations on path fail with err. For CreateTemp the path is
// the directory; for Rename it is the destination.
func (f *FaultyFilesystem) FailOn(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = err
}

func (f *FaultyFilesystem) failure(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[path]
}

func (f *FaultyFilesystem) Open(path string) (io.ReadCloser, error) {
	if err := f.failure(path); err != nil {
		return nil, err
	}
	return f.FilesystemManager.Open(path)
}

func (f *FaultyFilesystem) CreateTemp(dir string, pattern string) (ds.WritableFile, error) {
	if err := f.failure(dir); err != nil {
		return nil, err
	}
	return f.FilesystemManager.CreateTemp(dir, pattern)
}

func (f *FaultyFilesystem) Rename(oldPath, newPath string) error {
	if err := f.failure(newPath); err != nil {
		return err
	}
	return f.FilesystemManager.Rename(oldPath, newPath)
}

func (f *FaultyFilesystem) MkdirAll(path string) error {
	if err := f.failure(path); err != nil {
		return err
	}
	return f.FilesystemManager.MkdirAll(path)
}

// Compile-time check
var _ ds.FilesystemManager = (*FaultyFilesystem)(nil)
