package fs

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"drivesync/internal/ds"
)

// OSFilesystemManager is the real filesystem implementation of ds.FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	ignorePatterns []string

	mu       sync.Mutex
	matchers map[string]*cachedMatcher
}

// cachedMatcher is the matcher for one root, valid while the root's
// ignore file keeps the same modification time.
type cachedMatcher struct {
	matcher   *IgnoreMatcher
	fileMtime time.Time
}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
// ignorePatterns come from config and are combined with each root's ignore file.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	return &OSFilesystemManager{
		ignorePatterns: ignorePatterns,
		matchers:       make(map[string]*cachedMatcher),
	}
}

func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (m *OSFilesystemManager) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

func (m *OSFilesystemManager) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return os.Open(path)
}

func (m *OSFilesystemManager) CreateTemp(dir string, pattern string) (ds.WritableFile, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (m *OSFilesystemManager) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (m *OSFilesystemManager) Remove(path string) error {
	return os.Remove(path)
}

// Chtimes sets both access and modification time to mtime.
func (m *OSFilesystemManager) Chtimes(path string, mtime time.Time) error {
	return os.Chtimes(path, mtime, mtime)
}

// Checksum returns the hex MD5 digest of the file, the same digest Drive
// reports as md5Checksum.
func (m *OSFilesystemManager) Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for checksum: %w", path, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsIgnored reports whether path is excluded by the configured patterns or
// the ignore file at the top of root.
func (m *OSFilesystemManager) IsIgnored(path string, root string, isDir bool) (bool, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false, fmt.Errorf("relative path of %s: %w", path, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}

	matcher, err := m.matcherFor(root)
	if err != nil {
		return false, err
	}
	return matcher.Match(rel, isDir), nil
}

// matcherFor returns the matcher for root, re-reading the ignore file when
// it has changed since the last call.
func (m *OSFilesystemManager) matcherFor(root string) (*IgnoreMatcher, error) {
	ignoreFile := filepath.Join(root, IgnoreFileName)

	var mtime time.Time
	info, err := os.Stat(ignoreFile)
	switch {
	case err == nil:
		mtime = info.ModTime()
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("stat ignore file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.matchers[root]; ok && cached.fileMtime.Equal(mtime) {
		return cached.matcher, nil
	}

	filePatterns, err := ParseIgnoreFile(ignoreFile)
	if err != nil {
		return nil, err
	}

	patterns := append(append([]string{}, m.ignorePatterns...), filePatterns...)
	matcher, err := NewIgnoreMatcher(patterns)
	if err != nil {
		return nil, err
	}
	m.matchers[root] = &cachedMatcher{matcher: matcher, fileMtime: mtime}
	return matcher, nil
}

// Compile-time check that OSFilesystemManager implements ds.FilesystemManager interface
var _ ds.FilesystemManager = (*OSFilesystemManager)(nil)
