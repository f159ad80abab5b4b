package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"drivesync/internal/ds"
)

func newTestMemoryStore() *MemoryStore {
	return NewMemoryStore(ds.RealClock{}, ds.UUIDGenerator{})
}

func TestMemoryStore_ListChildren(t *testing.T) {
	ctx := context.Background()
	m := newTestMemoryStore()
	mtime := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	folderID := m.AddFolder("docs", MemoryRootID)
	m.AddFile("b.txt", MemoryRootID, []byte("bee"), mtime)
	m.AddFile("a.txt", MemoryRootID, []byte("ay"), mtime)
	m.AddFile("nested.txt", folderID, []byte("n"), mtime)

	children, err := m.ListChildren(ctx, MemoryRootID)
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	var names []string
	for _, c := range children {
		names = append(names, c.Name)
	}
	if got := strings.Join(names, ","); got != "a.txt,b.txt,docs" {
		t.Errorf("ListChildren() names = %s, want a.txt,b.txt,docs", got)
	}
	if !children[2].IsFolder() {
		t.Error("docs should be a folder")
	}
	if children[0].Size != 2 || children[0].Checksum == "" {
		t.Errorf("a.txt = size %d checksum %q, want size 2 and a checksum", children[0].Size, children[0].Checksum)
	}

	if _, err := m.ListChildren(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListChildren(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_GetMedia(t *testing.T) {
	ctx := context.Background()
	m := newTestMemoryStore()
	item := m.AddFile("a.txt", MemoryRootID, []byte("hello world"), time.Now())

	t.Run("from offset", func(t *testing.T) {
		stream, err := m.GetMedia(ctx, item.ID, 6)
		if err != nil {
			t.Fatalf("GetMedia() error = %v", err)
		}
		defer stream.Close()
		got, _ := io.ReadAll(stream)
		if string(got) != "world" {
			t.Errorf("content = %q, want %q", got, "world")
		}
		if stream.Length != 5 {
			t.Errorf("Length = %d, want 5", stream.Length)
		}
	})

	t.Run("interrupted once", func(t *testing.T) {
		m.InterruptOnce(item.ID, 4)
		stream, err := m.GetMedia(ctx, item.ID, 0)
		if err != nil {
			t.Fatalf("GetMedia() error = %v", err)
		}
		got, err := io.ReadAll(stream)
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("ReadAll() error = %v, want io.ErrUnexpectedEOF", err)
		}
		if string(got) != "hell" {
			t.Errorf("content = %q, want %q", got, "hell")
		}

		stream, err = m.GetMedia(ctx, item.ID, 0)
		if err != nil {
			t.Fatalf("second GetMedia() error = %v", err)
		}
		got, err = io.ReadAll(stream)
		if err != nil || string(got) != "hello world" {
			t.Errorf("second read = (%q, %v), want full content", got, err)
		}
	})

	t.Run("offset out of range", func(t *testing.T) {
		if _, err := m.GetMedia(ctx, item.ID, 100); err == nil {
			t.Error("GetMedia() expected error for offset past end")
		}
	})

	if m.Downloads(item.ID) != 3 {
		t.Errorf("Downloads() = %d, want 3", m.Downloads(item.ID))
	}
}

func TestMemoryStore_ExportMedia(t *testing.T) {
	ctx := context.Background()
	m := newTestMemoryStore()
	doc := m.AddNativeDocument("Plan", MemoryRootID, "application/vnd.google-apps.document", []byte("%PDF-1.4"), time.Now())

	if doc.Size != 0 {
		t.Errorf("native document Size = %d, want 0", doc.Size)
	}
	if _, err := m.GetMedia(ctx, doc.ID, 0); err == nil {
		t.Error("GetMedia() expected error for native document")
	}

	stream, err := m.ExportMedia(ctx, doc.ID, "application/pdf")
	if err != nil {
		t.Fatalf("ExportMedia() error = %v", err)
	}
	got, _ := io.ReadAll(stream)
	if string(got) != "%PDF-1.4" {
		t.Errorf("exported = %q, want %q", got, "%PDF-1.4")
	}
	if stream.Length != -1 {
		t.Errorf("Length = %d, want -1", stream.Length)
	}

	if _, err := m.ExportMedia(ctx, doc.ID, "text/plain"); err == nil {
		t.Error("ExportMedia() expected error for unsupported format")
	}
	if _, err := m.UpdateFile(ctx, doc.ID, "application/pdf", bytes.NewReader([]byte("x")), 1); err == nil {
		t.Error("UpdateFile() expected error for native document")
	}
}

func TestMemoryStore_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	m := newTestMemoryStore()

	folderID, err := m.CreateFolder(ctx, "photos", MemoryRootID)
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}

	item, err := m.CreateFile(ctx, "cat.jpg", folderID, "image/jpeg", strings.NewReader("meow"), 4)
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if item.ParentID != folderID || item.Size != 4 {
		t.Errorf("item = %+v, want parent %s size 4", item, folderID)
	}

	if _, err := m.CreateFile(ctx, "dog.jpg", folderID, "image/jpeg", strings.NewReader("woof"), 10); err == nil {
		t.Error("CreateFile() expected size mismatch error")
	}
	if _, err := m.CreateFile(ctx, "x", item.ID, "text/plain", strings.NewReader(""), 0); err == nil {
		t.Error("CreateFile() expected error for file parent")
	}

	updated, err := m.UpdateFile(ctx, item.ID, "image/jpeg", strings.NewReader("purr!"), 5)
	if err != nil {
		t.Fatalf("UpdateFile() error = %v", err)
	}
	if updated.ID != item.ID || updated.Size != 5 {
		t.Errorf("updated = %+v, want same id size 5", updated)
	}
	content, _ := m.Content(item.ID)
	if string(content) != "purr!" {
		t.Errorf("Content() = %q, want %q", content, "purr!")
	}
	if m.Uploads(item.ID) != 2 || m.TotalUploads() != 2 {
		t.Errorf("Uploads() = %d, TotalUploads() = %d, want 2 and 2", m.Uploads(item.ID), m.TotalUploads())
	}

	got, err := m.GetItem(ctx, folderID)
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if !got.IsFolder() || got.Name != "photos" {
		t.Errorf("GetItem() = %+v, want folder photos", got)
	}
}

func TestMemoryStore_FailOn(t *testing.T) {
	ctx := context.Background()
	m := newTestMemoryStore()
	item := m.AddFile("a.txt", MemoryRootID, []byte("a"), time.Now())
	boom := errors.New("boom")

	m.FailOn(item.ID, boom)
	if _, err := m.GetMedia(ctx, item.ID, 0); !errors.Is(err, boom) {
		t.Errorf("GetMedia() error = %v, want boom", err)
	}
	m.FailOn("new.txt", ds.Fatal(boom))
	_, err := m.CreateFile(ctx, "new.txt", MemoryRootID, "text/plain", strings.NewReader(""), 0)
	if !ds.IsFatal(err) {
		t.Errorf("CreateFile() error = %v, want fatal", err)
	}

	m.ClearFailure(item.ID)
	if _, err := m.GetMedia(ctx, item.ID, 0); err != nil {
		t.Errorf("GetMedia() after ClearFailure error = %v", err)
	}
}
