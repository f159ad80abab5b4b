package ds_test

import (
	"testing"
	"time"

	"drivesync/internal/ds"
)

var (
	t0 = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func TestDetectDownload(t *testing.T) {
	tests := []struct {
		name   string
		rec    *ds.IndexRecord
		local  *ds.LocalMeta
		remote *ds.RemoteItem
		want   ds.Action
	}{
		{
			name:   "folder missing locally",
			remote: &ds.RemoteItem{Kind: ds.KindFolder},
			want:   ds.NeedsCreateLocalFolder,
		},
		{
			name:   "folder present locally",
			local:  &ds.LocalMeta{IsDir: true, ModifiedAt: t0},
			remote: &ds.RemoteItem{Kind: ds.KindFolder, ModifiedAt: t1},
			want:   ds.NoAction,
		},
		{
			name:   "file missing locally",
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 10, ModifiedAt: t0},
			want:   ds.NeedsDownload,
		},
		{
			name:   "directory where the file belongs",
			local:  &ds.LocalMeta{IsDir: true, ModifiedAt: t1},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 0, ModifiedAt: t0},
			want:   ds.NeedsDownload,
		},
		{
			name:   "remote larger",
			local:  &ds.LocalMeta{Size: 5, ModifiedAt: t1},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 10, ModifiedAt: t0},
			want:   ds.NeedsDownload,
		},
		{
			name:   "remote smaller even when newer",
			local:  &ds.LocalMeta{Size: 10, ModifiedAt: t0},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 5, ModifiedAt: t1},
			want:   ds.NoAction,
		},
		{
			name:   "equal size remote newer",
			local:  &ds.LocalMeta{Size: 10, ModifiedAt: t0},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 10, ModifiedAt: t1},
			want:   ds.NeedsDownload,
		},
		{
			name:   "equal size equal time",
			local:  &ds.LocalMeta{Size: 10, ModifiedAt: t0},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 10, ModifiedAt: t0},
			want:   ds.NoAction,
		},
		{
			name:   "sub-second difference is ignored",
			local:  &ds.LocalMeta{Size: 10, ModifiedAt: t0},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 10, ModifiedAt: t0.Add(900 * time.Millisecond)},
			want:   ds.NoAction,
		},
		{
			name:   "time zones are normalized",
			local:  &ds.LocalMeta{Size: 10, ModifiedAt: t0.In(time.FixedZone("CET", 3600))},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 10, ModifiedAt: t0},
			want:   ds.NoAction,
		},
		{
			name:   "record does not change the outcome",
			rec:    &ds.IndexRecord{RemoteSize: 10, RemoteModifiedAt: t1},
			local:  &ds.LocalMeta{Size: 10, ModifiedAt: t0},
			remote: &ds.RemoteItem{Kind: ds.KindFile, Size: 10, ModifiedAt: t1},
			want:   ds.NeedsDownload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ds.DetectDownload(tt.rec, tt.local, tt.remote); got != tt.want {
				t.Errorf("DetectDownload() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectUpload(t *testing.T) {
	tests := []struct {
		name  string
		rec   *ds.IndexRecord
		local *ds.LocalMeta
		want  ds.Action
	}{
		{
			name:  "unindexed directory",
			local: &ds.LocalMeta{IsDir: true},
			want:  ds.NeedsCreateRemoteFolder,
		},
		{
			name:  "indexed directory",
			rec:   &ds.IndexRecord{Kind: ds.KindFolder},
			local: &ds.LocalMeta{IsDir: true},
			want:  ds.NoAction,
		},
		{
			name:  "unindexed file",
			local: &ds.LocalMeta{Size: 3, ModifiedAt: t0},
			want:  ds.NeedsUpload,
		},
		{
			name:  "local grew",
			rec:   &ds.IndexRecord{RemoteSize: 3, RemoteModifiedAt: t1},
			local: &ds.LocalMeta{Size: 4, ModifiedAt: t0},
			want:  ds.NeedsUpload,
		},
		{
			name:  "local shrank",
			rec:   &ds.IndexRecord{RemoteSize: 4, RemoteModifiedAt: t0},
			local: &ds.LocalMeta{Size: 3, ModifiedAt: t1},
			want:  ds.NoAction,
		},
		{
			name:  "equal size local newer",
			rec:   &ds.IndexRecord{RemoteSize: 3, RemoteModifiedAt: t0},
			local: &ds.LocalMeta{Size: 3, ModifiedAt: t1},
			want:  ds.NeedsUpload,
		},
		{
			name:  "equal size local older",
			rec:   &ds.IndexRecord{RemoteSize: 3, RemoteModifiedAt: t1},
			local: &ds.LocalMeta{Size: 3, ModifiedAt: t0},
			want:  ds.NoAction,
		},
		{
			name:  "steady state",
			rec:   &ds.IndexRecord{RemoteSize: 3, RemoteModifiedAt: t0},
			local: &ds.LocalMeta{Size: 3, ModifiedAt: t0.Add(500 * time.Millisecond)},
			want:  ds.NoAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ds.DetectUpload(tt.rec, tt.local); got != tt.want {
				t.Errorf("DetectUpload() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAction_String(t *testing.T) {
	if got := ds.NeedsCreateRemoteFolder.String(); got != "needs_create_remote_folder" {
		t.Errorf("String() = %q", got)
	}
	if got := ds.Action(42).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}

func TestNormalizeTime(t *testing.T) {
	in := time.Date(2024, 1, 10, 10, 0, 0, 999_000_000, time.FixedZone("CET", 3600))
	got := ds.NormalizeTime(in)
	want := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("NormalizeTime() = %v, want %v", got, want)
	}
	if !ds.NormalizeTime(time.Time{}).IsZero() {
		t.Error("NormalizeTime(zero) is not zero")
	}
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{"application/vnd.google-apps.document", "Notes.pdf"},
		{"application/vnd.google-apps.spreadsheet", "Notes.xlsx"},
		{"application/vnd.google-apps.presentation", "Notes.pdf"},
		{"text/plain", "Notes"},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			if got := ds.LocalName(&ds.RemoteItem{Name: "Notes", MimeType: tt.mimeType}); got != tt.want {
				t.Errorf("LocalName() = %q, want %q", got, tt.want)
			}
		})
	}
}
