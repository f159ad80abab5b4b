package fs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestOSFilesystemManager_Checksum(t *testing.T) {
	t.Parallel()
	m := NewOSFilesystemManager(nil)
	path := filepath.Join(t.TempDir(), "fox.txt")
	writeFile(t, path, "The quick brown fox jumps over the lazy dog")

	got, err := m.Checksum(path)
	if err != nil {
		t.Fatalf("Checksum() error = %v", err)
	}
	if want := "9e107d9d372bb6826bd81d3542a419d6"; got != want {
		t.Errorf("Checksum() = %q, want %q", got, want)
	}
}

func TestOSFilesystemManager_TempRenameChtimes(t *testing.T) {
	t.Parallel()
	m := NewOSFilesystemManager(nil)
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.bin")

	tmp, err := m.CreateTemp(dir, ".drivesync-*.part")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	if _, err := io.WriteString(tmp, "payload"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := tmp.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := m.Rename(tmp.Name(), dest); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	mtime := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if err := m.Chtimes(dest, mtime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	info, err := m.Stat(dest)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("ModTime() = %v, want %v", info.ModTime(), mtime)
	}
	if info.Size() != 7 {
		t.Errorf("Size() = %d, want 7", info.Size())
	}

	if _, err := m.Stat(tmp.Name()); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temp file still present after rename: %v", err)
	}

	if err := m.Remove(dest); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}

func TestOSFilesystemManager_Open(t *testing.T) {
	t.Parallel()
	m := NewOSFilesystemManager(nil)
	dir := t.TempDir()

	if _, err := m.Open(dir); err == nil {
		t.Error("Open() expected error for directory")
	}

	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")
	rc, err := m.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

func TestOSFilesystemManager_IsIgnored(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, IgnoreFileName), "*.bak\nbuild/cache\nvendor/\n")

	m := NewOSFilesystemManager([]string{"*.log"})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{path: filepath.Join(root, "notes.txt"), want: false},
		{path: filepath.Join(root, "debug.log"), want: true},
		{path: filepath.Join(root, "sub", "old.bak"), want: true},
		{path: filepath.Join(root, "build", "cache"), isDir: true, want: true},
		{path: filepath.Join(root, "build", "main.o"), want: false},
		{path: filepath.Join(root, "vendor"), isDir: true, want: true},
		{path: filepath.Join(root, "vendor"), want: false},
		{path: filepath.Join(root, IgnoreFileName), want: true},
		{path: filepath.Join(root, "docs", ".drivesync-42.part"), want: true},
		{path: root, isDir: true, want: false},
		{path: filepath.Join(filepath.Dir(root), "outside.log"), want: false},
	}

	for _, tt := range tests {
		got, err := m.IsIgnored(tt.path, root, tt.isDir)
		if err != nil {
			t.Fatalf("IsIgnored(%q) error = %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("IsIgnored(%q, dir=%v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
}

func TestOSFilesystemManager_IsIgnored_BadIgnoreFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, IgnoreFileName), "[unclosed\n")
	m := NewOSFilesystemManager(nil)

	if _, err := m.IsIgnored(filepath.Join(root, "a.txt"), root, false); err == nil {
		t.Error("IsIgnored() expected error for invalid pattern")
	}
}

func TestOSFilesystemManager_IsIgnored_ReloadsIgnoreFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ignoreFile := filepath.Join(root, IgnoreFileName)
	target := filepath.Join(root, "draft.tmp")
	m := NewOSFilesystemManager(nil)

	got, err := m.IsIgnored(target, root, false)
	if err != nil {
		t.Fatalf("IsIgnored() error = %v", err)
	}
	if got {
		t.Fatal("IsIgnored() = true before ignore file exists")
	}

	writeFile(t, ignoreFile, "*.tmp\n")
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(ignoreFile, later, later); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	got, err = m.IsIgnored(target, root, false)
	if err != nil {
		t.Fatalf("IsIgnored() error = %v", err)
	}
	if !got {
		t.Error("IsIgnored() = false after ignore file was added")
	}
}
