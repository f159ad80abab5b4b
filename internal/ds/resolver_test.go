package ds_test

import (
	"path/filepath"
	"testing"

	"drivesync/internal/ds"
	"drivesync/internal/testutil"
)

func TestResolver(t *testing.T) {
	idx := testutil.NewTestIndex(t)
	root := t.TempDir()
	r := ds.NewResolver(idx, root+string(filepath.Separator), "root", ds.NewNopLogger())

	docs, err := idx.Upsert(&ds.IndexRecord{
		Kind:      ds.KindFolder,
		LocalPath: filepath.Join(root, "docs"),
		RemoteID:  "folder-docs",
		Name:      "docs",
		Status:    ds.StatusSynced,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	t.Run("root is cleaned", func(t *testing.T) {
		if r.LocalRoot() != root {
			t.Errorf("LocalRoot() = %q, want %q", r.LocalRoot(), root)
		}
	})

	t.Run("local child of root", func(t *testing.T) {
		parent, err := r.LocalParent(filepath.Join(root, "a.txt"))
		if err != nil {
			t.Fatalf("LocalParent() error = %v", err)
		}
		if parent != nil {
			t.Errorf("LocalParent() = %+v, want nil", parent)
		}
	})

	t.Run("local child of indexed folder", func(t *testing.T) {
		parent, err := r.LocalParent(filepath.Join(root, "docs", "a.txt"))
		if err != nil {
			t.Fatalf("LocalParent() error = %v", err)
		}
		if parent == nil || parent.ID != docs.ID {
			t.Errorf("LocalParent() = %+v, want record %d", parent, docs.ID)
		}
	})

	t.Run("local child of unindexed folder", func(t *testing.T) {
		parent, err := r.LocalParent(filepath.Join(root, "other", "a.txt"))
		if err != nil {
			t.Fatalf("LocalParent() error = %v", err)
		}
		if parent != nil {
			t.Errorf("LocalParent() = %+v, want nil", parent)
		}
	})

	t.Run("remote root", func(t *testing.T) {
		parent, err := r.RemoteParent(&ds.RemoteItem{ID: "x", ParentID: "root"})
		if err != nil {
			t.Fatalf("RemoteParent() error = %v", err)
		}
		if parent != nil {
			t.Errorf("RemoteParent() = %+v, want nil", parent)
		}
		if got := r.ChildPath(parent, "x.txt"); got != filepath.Join(root, "x.txt") {
			t.Errorf("ChildPath() = %q", got)
		}
		if got := r.RemoteFolderOf(parent); got != "root" {
			t.Errorf("RemoteFolderOf() = %q, want root", got)
		}
	})

	t.Run("remote child of indexed folder", func(t *testing.T) {
		parent, err := r.RemoteParent(&ds.RemoteItem{ID: "x", ParentID: "folder-docs"})
		if err != nil {
			t.Fatalf("RemoteParent() error = %v", err)
		}
		if parent == nil || parent.ID != docs.ID {
			t.Fatalf("RemoteParent() = %+v, want record %d", parent, docs.ID)
		}
		if got := r.ChildPath(parent, "x.txt"); got != filepath.Join(root, "docs", "x.txt") {
			t.Errorf("ChildPath() = %q", got)
		}
		if got := r.RemoteFolderOf(parent); got != "folder-docs" {
			t.Errorf("RemoteFolderOf() = %q, want folder-docs", got)
		}
	})

	t.Run("remote child of unknown folder", func(t *testing.T) {
		parent, err := r.Folder("folder-unknown")
		if err != nil {
			t.Fatalf("Folder() error = %v", err)
		}
		if parent != nil {
			t.Errorf("Folder() = %+v, want nil", parent)
		}
	})
}

func TestResolver_IndexFailureIsFatal(t *testing.T) {
	idx := testutil.NewTestIndex(t)
	r := ds.NewResolver(idx, t.TempDir(), "root", ds.NewNopLogger())
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := r.Folder("folder-1"); !ds.IsFatal(err) {
		t.Errorf("Folder() error = %v, want fatal", err)
	}
}
