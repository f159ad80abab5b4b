package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"drivesync/internal/ds"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every query can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db DBTX
}

func (q *queries) withTx(tx *sql.Tx) *queries {
	return &queries{db: tx}
}

const fileColumns = `id, kind, local_path, remote_id, name, parent_id, mime_type, checksum,
	local_modified_at, remote_modified_at, sync_status, remote_size, local_size`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*ds.IndexRecord, error) {
	var rec ds.IndexRecord
	var kind, status string
	var localModified, remoteModified sql.NullTime
	err := row.Scan(
		&rec.ID,
		&kind,
		&rec.LocalPath,
		&rec.RemoteID,
		&rec.Name,
		&rec.ParentID,
		&rec.MimeType,
		&rec.Checksum,
		&localModified,
		&remoteModified,
		&status,
		&rec.RemoteSize,
		&rec.LocalSize,
	)
	if err != nil {
		return nil, err
	}
	rec.Kind = ds.Kind(kind)
	rec.Status = ds.SyncStatus(status)
	if localModified.Valid {
		rec.LocalModifiedAt = localModified.Time.UTC()
	}
	if remoteModified.Valid {
		rec.RemoteModifiedAt = remoteModified.Time.UTC()
	}
	return &rec, nil
}

// getFile runs a single-row lookup and maps sql.ErrNoRows to (nil, nil).
func (q *queries) getFile(ctx context.Context, where string, arg any) (*ds.IndexRecord, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE "+where, arg)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (q *queries) getFileByID(ctx context.Context, id int64) (*ds.IndexRecord, error) {
	return q.getFile(ctx, "id = ?", id)
}

func (q *queries) getFileByRemoteID(ctx context.Context, remoteID string) (*ds.IndexRecord, error) {
	return q.getFile(ctx, "remote_id = ?", remoteID)
}

func (q *queries) getFileByLocalPath(ctx context.Context, path string) (*ds.IndexRecord, error) {
	return q.getFile(ctx, "local_path = ?", path)
}

func (q *queries) listFilesByParent(ctx context.Context, parentID sql.NullInt64) ([]*ds.IndexRecord, error) {
	var rows *sql.Rows
	var err error
	if parentID.Valid {
		rows, err = q.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE parent_id = ? ORDER BY name", parentID.Int64)
	} else {
		rows, err = q.db.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE parent_id IS NULL ORDER BY name")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*ds.IndexRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (q *queries) insertFile(ctx context.Context, rec *ds.IndexRecord) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO files (
		kind, local_path, remote_id, name, parent_id, mime_type, checksum,
		local_modified_at, remote_modified_at, sync_status, remote_size, local_size
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Kind),
		rec.LocalPath,
		rec.RemoteID,
		rec.Name,
		rec.ParentID,
		rec.MimeType,
		rec.Checksum,
		nullTime(rec.LocalModifiedAt),
		nullTime(rec.RemoteModifiedAt),
		string(rec.Status),
		rec.RemoteSize,
		rec.LocalSize,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *queries) updateFile(ctx context.Context, id int64, rec *ds.IndexRecord) error {
	_, err := q.db.ExecContext(ctx, `UPDATE files SET
		kind = ?, local_path = ?, remote_id = ?, name = ?, parent_id = ?, mime_type = ?,
		checksum = ?, local_modified_at = ?, remote_modified_at = ?, sync_status = ?,
		remote_size = ?, local_size = ?
	WHERE id = ?`,
		string(rec.Kind),
		rec.LocalPath,
		rec.RemoteID,
		rec.Name,
		rec.ParentID,
		rec.MimeType,
		rec.Checksum,
		nullTime(rec.LocalModifiedAt),
		nullTime(rec.RemoteModifiedAt),
		string(rec.Status),
		rec.RemoteSize,
		rec.LocalSize,
		id,
	)
	return err
}

func (q *queries) updateFileStatus(ctx context.Context, id int64, status ds.SyncStatus) (int64, error) {
	res, err := q.db.ExecContext(ctx, "UPDATE files SET sync_status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *queries) countFiles(ctx context.Context, kind ds.Kind) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE kind = ?", string(kind)).Scan(&n)
	return n, err
}

func (q *queries) insertHistory(ctx context.Context, e *ds.HistoryEntry) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO sync_history (
		file_id, local_path, remote_id, synced_at, action, status, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RecordID,
		e.LocalPath,
		e.RemoteID,
		e.SyncedAt.UTC(),
		e.Action,
		e.Status,
		e.ErrorMessage,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *queries) listHistory(ctx context.Context, where string, args ...any) ([]*ds.HistoryEntry, error) {
	query := `SELECT id, file_id, local_path, remote_id, synced_at, action, status, error_message
		FROM sync_history ` + where
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*ds.HistoryEntry
	for rows.Next() {
		var e ds.HistoryEntry
		if err := rows.Scan(&e.ID, &e.RecordID, &e.LocalPath, &e.RemoteID, &e.SyncedAt, &e.Action, &e.Status, &e.ErrorMessage); err != nil {
			return nil, err
		}
		e.SyncedAt = e.SyncedAt.UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (q *queries) insertCycle(ctx context.Context, cycleID, rootID string, startedAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO sync_cycles (cycle_id, root_id, started_at, status) VALUES (?, ?, ?, 'running')",
		cycleID, rootID, startedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *queries) finishCycle(ctx context.Context, id int64, status string, stats ds.CycleStats, errMsg string, finishedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE sync_cycles SET
		finished_at = ?, status = ?, downloaded = ?, uploaded = ?, local_folders_created = ?,
		remote_folders_created = ?, unchanged = ?, failed = ?, error_message = ?
	WHERE id = ?`,
		finishedAt.UTC(),
		status,
		stats.Downloaded,
		stats.Uploaded,
		stats.LocalFoldersCreated,
		stats.RemoteFoldersCreated,
		stats.Unchanged,
		stats.Failed,
		errMsg,
		id,
	)
	return err
}

func (q *queries) listCycles(ctx context.Context, limit int64) ([]*ds.SyncCycle, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, cycle_id, root_id, started_at, finished_at, status,
		downloaded, uploaded, local_folders_created, remote_folders_created, unchanged, failed, error_message
		FROM sync_cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []*ds.SyncCycle
	for rows.Next() {
		var c ds.SyncCycle
		err := rows.Scan(
			&c.ID,
			&c.CycleID,
			&c.RootID,
			&c.StartedAt,
			&c.FinishedAt,
			&c.Status,
			&c.Stats.Downloaded,
			&c.Stats.Uploaded,
			&c.Stats.LocalFoldersCreated,
			&c.Stats.RemoteFoldersCreated,
			&c.Stats.Unchanged,
			&c.Stats.Failed,
			&c.Error,
		)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, &c)
	}
	return cycles, rows.Err()
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
