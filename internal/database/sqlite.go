package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"drivesync/internal/database/migrations"
	"drivesync/internal/ds"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// maxParentDepth bounds the acyclicity walk in Upsert.
const maxParentDepth = 4096

// ErrParentCycle is returned when an upsert would make a record its own ancestor.
var ErrParentCycle = errors.New("parent reference would create a cycle")

// SQLiteIndex implements ds.Index on SQLite.
//
// Writes are serialized by a mutex and each upsert runs in its own
// transaction, so two upserts for the same remote_id can never both insert.
type SQLiteIndex struct {
	db      *sql.DB
	queries *queries
	path    string
	mu      sync.Mutex
}

// NewSQLiteIndex opens the index at path. path can be a file path or
// ":memory:" for an in-memory index. The schema is not migrated; call Migrate.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteIndexFromDB(db, path), nil
}

// NewSQLiteIndexFromDB wraps an existing connection, which the caller must
// have configured with OpenConnection.
func NewSQLiteIndexFromDB(db *sql.DB, path string) *SQLiteIndex {
	return &SQLiteIndex{
		db:      db,
		queries: &queries{db: db},
		path:    path,
	}
}

// OpenConnection opens and configures a SQLite connection.
// The pool holds a single connection: SQLite allows one writer anyway, and
// every extra connection to ":memory:" would be a separate, empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Record lookups

func (s *SQLiteIndex) FindByLocalPath(path string) (*ds.IndexRecord, error) {
	rec, err := s.queries.getFileByLocalPath(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("finding record by local path: %w", err)
	}
	return rec, nil
}

func (s *SQLiteIndex) FindByRemoteID(remoteID string) (*ds.IndexRecord, error) {
	rec, err := s.queries.getFileByRemoteID(context.Background(), remoteID)
	if err != nil {
		return nil, fmt.Errorf("finding record by remote id: %w", err)
	}
	return rec, nil
}

func (s *SQLiteIndex) FindByID(id int64) (*ds.IndexRecord, error) {
	rec, err := s.queries.getFileByID(context.Background(), id)
	if err != nil {
		return nil, fmt.Errorf("finding record by id: %w", err)
	}
	return rec, nil
}

// ListChildren returns the records whose parent is parent (nil = root).
func (s *SQLiteIndex) ListChildren(parent *ds.IndexRecord) ([]*ds.IndexRecord, error) {
	recs, err := s.queries.listFilesByParent(context.Background(), ds.KeyOf(parent))
	if err != nil {
		return nil, fmt.Errorf("listing child records: %w", err)
	}
	return recs, nil
}

// CountRecords returns how many records of the given kind exist.
func (s *SQLiteIndex) CountRecords(kind ds.Kind) (int64, error) {
	n, err := s.queries.countFiles(context.Background(), kind)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Upsert stores rec keyed by its remote ID.
//
// When no record has rec.RemoteID but another record already holds
// rec.LocalPath, that record is re-keyed to the new remote ID: the item at
// that path was replaced on the remote, and local paths must stay unique.
func (s *SQLiteIndex) Upsert(rec *ds.IndexRecord) (*ds.IndexRecord, error) {
	if rec.RemoteID == "" {
		return nil, fmt.Errorf("upserting record: remote id is required")
	}
	if rec.LocalPath == "" {
		return nil, fmt.Errorf("upserting record %s: local path is required", rec.RemoteID)
	}
	if rec.Status == "" {
		rec.Status = ds.StatusSynced
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.withTx(tx)

	existing, err := qtx.getFileByRemoteID(ctx, rec.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("finding record by remote id: %w", err)
	}

	holder, err := qtx.getFileByLocalPath(ctx, rec.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("finding record by local path: %w", err)
	}
	if existing == nil {
		existing = holder
	} else if holder != nil && holder.ID != existing.ID {
		return nil, fmt.Errorf("upserting %s: local path %s belongs to remote id %s", rec.RemoteID, rec.LocalPath, holder.RemoteID)
	}

	var selfID int64
	if existing != nil {
		selfID = existing.ID
	}
	if err := checkParentChain(ctx, qtx, selfID, rec.ParentID); err != nil {
		return nil, fmt.Errorf("upserting %s: %w", rec.RemoteID, err)
	}

	id := selfID
	if existing != nil {
		if err := qtx.updateFile(ctx, id, rec); err != nil {
			return nil, fmt.Errorf("updating record: %w", err)
		}
	} else {
		id, err = qtx.insertFile(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("inserting record: %w", err)
		}
	}

	stored, err := qtx.getFileByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading stored record: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("record %d vanished during upsert", id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, nil
}

// checkParentChain walks up from parentID and fails if it reaches selfID or
// a missing record. selfID is zero for a record that is not stored yet.
func checkParentChain(ctx context.Context, q *queries, selfID int64, parentID sql.NullInt64) error {
	next := parentID
	for depth := 0; next.Valid; depth++ {
		if depth >= maxParentDepth {
			return fmt.Errorf("parent chain deeper than %d", maxParentDepth)
		}
		if selfID != 0 && next.Int64 == selfID {
			return ErrParentCycle
		}
		parent, err := q.getFileByID(ctx, next.Int64)
		if err != nil {
			return fmt.Errorf("reading parent %d: %w", next.Int64, err)
		}
		if parent == nil {
			return fmt.Errorf("parent record %d does not exist", next.Int64)
		}
		if parent.Kind != ds.KindFolder {
			return fmt.Errorf("parent record %d is not a folder", next.Int64)
		}
		next = parent.ParentID
	}
	return nil
}

func (s *SQLiteIndex) SetStatus(id int64, status ds.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.queries.updateFileStatus(context.Background(), id, status)
	if err != nil {
		return fmt.Errorf("setting record status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("setting record status: record %d not found", id)
	}
	return nil
}

// Sync history

func (s *SQLiteIndex) AppendHistory(entry *ds.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.SyncedAt.IsZero() {
		entry.SyncedAt = time.Now().UTC()
	}
	id, err := s.queries.insertHistory(context.Background(), entry)
	if err != nil {
		return fmt.Errorf("appending sync history: %w", err)
	}
	entry.ID = id
	return nil
}

// ListHistory returns the most recent ledger entries, newest first.
func (s *SQLiteIndex) ListHistory(limit int) ([]*ds.HistoryEntry, error) {
	entries, err := s.queries.listHistory(context.Background(), "ORDER BY id DESC LIMIT ?", int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing sync history: %w", err)
	}
	return entries, nil
}

// ListHistoryForPath returns the ledger entries for one local path, newest first.
func (s *SQLiteIndex) ListHistoryForPath(path string, limit int) ([]*ds.HistoryEntry, error) {
	entries, err := s.queries.listHistory(context.Background(), "WHERE local_path = ? ORDER BY id DESC LIMIT ?", path, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing sync history for %s: %w", path, err)
	}
	return entries, nil
}

// Sync cycle tracking

func (s *SQLiteIndex) CreateCycle(cycleID string, rootID string, startedAt time.Time) (*ds.SyncCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.queries.insertCycle(context.Background(), cycleID, rootID, startedAt)
	if err != nil {
		return nil, fmt.Errorf("creating sync cycle: %w", err)
	}
	return &ds.SyncCycle{
		ID:        id,
		CycleID:   cycleID,
		RootID:    rootID,
		StartedAt: startedAt.UTC(),
		Status:    "running",
	}, nil
}

func (s *SQLiteIndex) FinishCycle(id int64, status string, stats ds.CycleStats, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queries.finishCycle(context.Background(), id, status, stats, errMsg, finishedAt); err != nil {
		return fmt.Errorf("finishing sync cycle: %w", err)
	}
	return nil
}

// ListCycles returns the most recent cycles, newest first.
func (s *SQLiteIndex) ListCycles(limit int) ([]*ds.SyncCycle, error) {
	cycles, err := s.queries.listCycles(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing sync cycles: %w", err)
	}
	return cycles, nil
}

// Path returns the index file path (or ":memory:").
func (s *SQLiteIndex) Path() string {
	return s.path
}

// Migrate brings the schema up to the version embedded in the binary.
func (s *SQLiteIndex) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the schema is up to date.
func (s *SQLiteIndex) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the index to destPath using VACUUM INTO.
func (s *SQLiteIndex) BackupTo(destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up index: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ ds.Index = (*SQLiteIndex)(nil)
