package ds_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"drivesync/internal/ds"
	"drivesync/internal/fs"
	"drivesync/internal/remote"
	"drivesync/internal/testutil"
)

// progressLog collects progress reports.
type progressLog struct {
	mu      sync.Mutex
	reports []ds.Progress
}

func (l *progressLog) record(p ds.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, p)
}

func (l *progressLog) percents() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, len(l.reports))
	for i, p := range l.reports {
		out[i] = p.Percent
	}
	return out
}

// checkProgress asserts reports only increase and reach 100 exactly once,
// as the last report.
func checkProgress(t *testing.T, percents []int) {
	t.Helper()
	if len(percents) < 2 {
		t.Fatalf("got %d progress reports, want at least start and finish", len(percents))
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress went backwards: %v", percents)
		}
	}
	for i, p := range percents {
		if p == 100 && i != len(percents)-1 {
			t.Errorf("100%% reported before the end: %v", percents)
		}
	}
	if last := percents[len(percents)-1]; last != 100 {
		t.Errorf("last progress = %d, want 100", last)
	}
}

func newTransferFixture(t *testing.T, opts ds.TransferOptions) (*ds.TransferExecutor, *remote.MemoryStore, string) {
	t.Helper()
	store := testutil.NewMemoryRemote(testutil.FixedClock())
	fsmgr := fs.NewOSFilesystemManager(nil)
	return ds.NewTransferExecutor(store, fsmgr, ds.NewNopLogger(), opts), store, t.TempDir()
}

func TestTransferExecutor_Download(t *testing.T) {
	var log progressLog
	x, store, dir := newTransferFixture(t, ds.TransferOptions{ChunkSize: 4, Progress: log.record})
	content := []byte("0123456789abcdefghij")
	item := store.AddFile("a.txt", remote.MemoryRootID, content, t0)

	dest := filepath.Join(dir, "a.txt")
	n, err := x.Download(context.Background(), item.ID, nil, dest)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("Download() = %d bytes, want %d", n, len(content))
	}
	if got := testutil.ReadLocalFile(t, dir, "a.txt"); !bytes.Equal(got, content) {
		t.Errorf("content = %q, want %q", got, content)
	}
	checkProgress(t, log.percents())
	if got := testutil.ListLocalTree(t, dir); len(got) != 1 {
		t.Errorf("directory contains %v, want only a.txt", got)
	}
}

func TestTransferExecutor_Download_Resumes(t *testing.T) {
	var log progressLog
	x, store, dir := newTransferFixture(t, ds.TransferOptions{ChunkSize: 3, Progress: log.record})
	content := []byte(strings.Repeat("resumable-", 10))
	item := store.AddFile("big.bin", remote.MemoryRootID, content, t0)
	store.InterruptOnce(item.ID, 37)

	dest := filepath.Join(dir, "big.bin")
	n, err := x.Download(context.Background(), item.ID, nil, dest)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("Download() = %d bytes, want %d", n, len(content))
	}
	if got := testutil.ReadLocalFile(t, dir, "big.bin"); !bytes.Equal(got, content) {
		t.Errorf("resumed content = %q, want %q", got, content)
	}
	if got := store.Downloads(item.ID); got != 2 {
		t.Errorf("Downloads() = %d, want 2", got)
	}
	checkProgress(t, log.percents())
}

func TestTransferExecutor_Download_GivesUp(t *testing.T) {
	x, store, dir := newTransferFixture(t, ds.TransferOptions{MaxAttempts: 2})
	item := store.AddFile("a.txt", remote.MemoryRootID, []byte("new content"), t0)
	testutil.WriteLocalFile(t, dir, "a.txt", []byte("old"), t0)
	store.FailOn(item.ID, errors.New("connection reset"))

	if _, err := x.Download(context.Background(), item.ID, nil, filepath.Join(dir, "a.txt")); err == nil {
		t.Fatal("Download() expected error")
	}
	if got := testutil.ReadLocalFile(t, dir, "a.txt"); string(got) != "old" {
		t.Errorf("destination = %q, want it untouched", got)
	}
	if got := testutil.ListLocalTree(t, dir); len(got) != 1 {
		t.Errorf("temp file left behind: %v", got)
	}
}

func TestTransferExecutor_Download_FatalNotRetried(t *testing.T) {
	x, store, dir := newTransferFixture(t, ds.TransferOptions{MaxAttempts: 5})
	item := store.AddFile("a.txt", remote.MemoryRootID, []byte("content"), t0)
	store.FailOn(item.ID, ds.Fatal(errors.New("token revoked")))

	_, err := x.Download(context.Background(), item.ID, nil, filepath.Join(dir, "a.txt"))
	if !ds.IsFatal(err) {
		t.Fatalf("Download() error = %v, want fatal", err)
	}
	if got := testutil.ListLocalTree(t, dir); len(got) != 0 {
		t.Errorf("directory contains %v, want nothing", got)
	}
}

func TestTransferExecutor_Download_Export(t *testing.T) {
	var log progressLog
	x, store, dir := newTransferFixture(t, ds.TransferOptions{Progress: log.record})
	pdf := []byte("%PDF-1.7 exported")
	item := store.AddNativeDocument("Report", remote.MemoryRootID, "application/vnd.google-apps.document", pdf, t0)

	dest := filepath.Join(dir, ds.LocalName(item))
	n, err := x.Download(context.Background(), item.ID, ds.ExportFormatFor(item.MimeType), dest)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(len(pdf)) {
		t.Errorf("Download() = %d bytes, want %d", n, len(pdf))
	}
	if got := testutil.ReadLocalFile(t, dir, "Report.pdf"); !bytes.Equal(got, pdf) {
		t.Errorf("exported content = %q", got)
	}
	if store.Exports(item.ID) != 1 || store.Downloads(item.ID) != 0 {
		t.Errorf("Exports() = %d, Downloads() = %d, want 1 and 0", store.Exports(item.ID), store.Downloads(item.ID))
	}

	percents := log.percents()
	checkProgress(t, percents)
	// Unknown length: only start and finish are reported.
	if len(percents) != 2 {
		t.Errorf("progress = %v, want [0 100]", percents)
	}
}

func TestTransferExecutor_Upload(t *testing.T) {
	var log progressLog
	x, store, dir := newTransferFixture(t, ds.TransferOptions{Progress: log.record})
	path := testutil.WriteLocalFile(t, dir, "notes.txt", []byte("first draft"), t0)

	item, err := x.Upload(context.Background(), path, remote.MemoryRootID, "")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if item.Name != "notes.txt" || item.Size != 11 {
		t.Errorf("Upload() = %+v", item)
	}
	if !strings.HasPrefix(item.MimeType, "text/plain") {
		t.Errorf("MimeType = %q, want text/plain", item.MimeType)
	}
	checkProgress(t, log.percents())

	testutil.WriteLocalFile(t, dir, "notes.txt", []byte("second draft"), t1)
	updated, err := x.Upload(context.Background(), path, remote.MemoryRootID, item.ID)
	if err != nil {
		t.Fatalf("Upload() update error = %v", err)
	}
	if updated.ID != item.ID {
		t.Errorf("update created %s, want %s replaced", updated.ID, item.ID)
	}
	content, _ := store.Content(item.ID)
	if string(content) != "second draft" {
		t.Errorf("remote content = %q", content)
	}
	if got := store.Uploads(item.ID); got != 2 {
		t.Errorf("Uploads() = %d, want 2", got)
	}
}

func TestDetectMimeType(t *testing.T) {
	if got := ds.DetectMimeType("archive.unknownext"); got != "application/octet-stream" {
		t.Errorf("DetectMimeType() = %q", got)
	}
	if got := ds.DetectMimeType("doc.pdf"); got != "application/pdf" {
		t.Errorf("DetectMimeType() = %q", got)
	}
}
