package ds

// Index provides the durable metadata store the reconcilers share.
// Lookups return (nil, nil) when no record matches.
type Index interface {
	// FindByLocalPath returns the record whose local path equals path.
	FindByLocalPath(path string) (*IndexRecord, error)

	// FindByRemoteID returns the record for the given remote identifier.
	FindByRemoteID(remoteID string) (*IndexRecord, error)

	// FindByID returns the record with the given arena key.
	FindByID(id int64) (*IndexRecord, error)

	// Upsert looks the record up by RemoteID. An existing record has all of its
	// mutable fields overwritten in place; otherwise a new record is inserted.
	// The stored record is returned. Concurrent calls for the same RemoteID
	// never create duplicates.
	Upsert(rec *IndexRecord) (*IndexRecord, error)

	// SetStatus updates only the informational status of a record.
	SetStatus(id int64, status SyncStatus) error

	// AppendHistory adds an entry to the sync ledger.
	AppendHistory(entry *HistoryEntry) error
}
