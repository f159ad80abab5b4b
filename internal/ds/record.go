package ds

import (
	"database/sql"
	"time"
)

// Kind distinguishes files from folders in the index and on the remote.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// SyncStatus is informational only; decisions are driven by size and time.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusPending SyncStatus = "pending"
	StatusError   SyncStatus = "error"
)

// IndexRecord is the last-known synchronized state of one file or folder.
// Records form an arena keyed by ID; ParentID points into the same arena and
// is null for children of the sync root.
type IndexRecord struct {
	ID               int64
	Kind             Kind
	LocalPath        string
	RemoteID         string
	Name             string
	ParentID         sql.NullInt64
	MimeType         string
	Checksum         string
	LocalModifiedAt  time.Time
	RemoteModifiedAt time.Time
	Status           SyncStatus
	RemoteSize       int64
	LocalSize        int64
}

// IsFolder reports whether the record describes a folder.
func (r *IndexRecord) IsFolder() bool {
	return r.Kind == KindFolder
}

// KeyOf returns the arena key of rec for use as a reference from another row.
// A nil record yields a null key, which for a parent reference is the sync root.
func KeyOf(rec *IndexRecord) sql.NullInt64 {
	if rec == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: rec.ID, Valid: true}
}

// History actions.
const (
	ActionDownload           = "download"
	ActionUpload             = "upload"
	ActionCreateLocalFolder  = "create_local_folder"
	ActionCreateRemoteFolder = "create_remote_folder"
	ActionAdopt              = "adopt"
)

// History statuses.
const (
	HistorySuccess = "success"
	HistoryFailed  = "failed"
)

// HistoryEntry is one row of the append-only sync ledger. RecordID is null
// when the action failed before any record existed for the item.
type HistoryEntry struct {
	ID           int64
	RecordID     sql.NullInt64
	LocalPath    string
	RemoteID     string
	SyncedAt     time.Time
	Action       string
	Status       string
	ErrorMessage string
}

// CycleStats counts what one sync cycle did.
type CycleStats struct {
	Downloaded           int64
	Uploaded             int64
	LocalFoldersCreated  int64
	RemoteFoldersCreated int64
	Unchanged            int64
	Failed               int64
}

// Transfers returns the number of completed file transfers in either direction.
func (s CycleStats) Transfers() int64 {
	return s.Downloaded + s.Uploaded
}

// SyncCycle is one driver pass as recorded in the cycle ledger.
type SyncCycle struct {
	ID         int64
	CycleID    string
	RootID     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Stats      CycleStats
	Error      string
}
