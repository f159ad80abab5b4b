package ds

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Options configures a SyncService.
type Options struct {
	// LocalRoot is the local directory kept in sync.
	LocalRoot string
	// RootFolderID is the remote folder mirrored into LocalRoot.
	RootFolderID string
	// Workers bounds the number of file transfers in flight. Values below 1
	// mean 1, which processes every item sequentially.
	Workers  int
	Transfer TransferOptions
}

// SyncService is the reconciliation core. A cycle runs the remote-to-local
// reconciler over the whole tree, then the local-to-remote reconciler.
type SyncService struct {
	index    Index
	remote   RemoteStore
	fsmgr    FilesystemManager
	logger   Logger
	clock    Clock
	resolver *Resolver
	transfer *TransferExecutor
	workers  int64
}

// NewSyncService creates a SyncService with the provided dependencies.
func NewSyncService(index Index, remote RemoteStore, fsmgr FilesystemManager, logger Logger, clock Clock, opts Options) *SyncService {
	workers := int64(opts.Workers)
	if workers < 1 {
		workers = 1
	}
	return &SyncService{
		index:    index,
		remote:   remote,
		fsmgr:    fsmgr,
		logger:   logger,
		clock:    clock,
		resolver: NewResolver(index, opts.LocalRoot, opts.RootFolderID, logger),
		transfer: NewTransferExecutor(remote, fsmgr, logger, opts.Transfer),
		workers:  workers,
	}
}

// Resolver returns the identity resolver used by the reconcilers.
func (s *SyncService) Resolver() *Resolver {
	return s.resolver
}

// RunCycle performs one full sync cycle. Per-item failures are logged and
// counted in the returned stats; an error is returned only when a whole pass
// could not run or a fatal error occurred.
func (s *SyncService) RunCycle(ctx context.Context) (CycleStats, error) {
	w := s.newWalk()

	s.logger.Info("sync cycle started", "local_root", s.resolver.LocalRoot(), "root_folder_id", s.resolver.RootFolderID())

	if err := s.pull(ctx, w); err != nil {
		return w.stats(), fmt.Errorf("remote-to-local pass: %w", err)
	}
	if err := s.push(ctx, w); err != nil {
		return w.stats(), fmt.Errorf("local-to-remote pass: %w", err)
	}

	stats := w.stats()
	s.logger.Info("sync cycle complete",
		"downloaded", stats.Downloaded,
		"uploaded", stats.Uploaded,
		"local_folders_created", stats.LocalFoldersCreated,
		"remote_folders_created", stats.RemoteFoldersCreated,
		"unchanged", stats.Unchanged,
		"failed", stats.Failed,
	)
	return stats, nil
}

// Pull runs only the remote-to-local reconciler.
func (s *SyncService) Pull(ctx context.Context) (CycleStats, error) {
	w := s.newWalk()
	err := s.pull(ctx, w)
	return w.stats(), err
}

// Push runs only the local-to-remote reconciler.
func (s *SyncService) Push(ctx context.Context) (CycleStats, error) {
	w := s.newWalk()
	err := s.push(ctx, w)
	return w.stats(), err
}

// walk holds the state shared by every goroutine of one reconciler pass.
type walk struct {
	sem                  *semaphore.Weighted
	downloaded           atomic.Int64
	uploaded             atomic.Int64
	localFoldersCreated  atomic.Int64
	remoteFoldersCreated atomic.Int64
	unchanged            atomic.Int64
	failed               atomic.Int64
}

func (s *SyncService) newWalk() *walk {
	return &walk{sem: semaphore.NewWeighted(s.workers)}
}

func (w *walk) stats() CycleStats {
	return CycleStats{
		Downloaded:           w.downloaded.Load(),
		Uploaded:             w.uploaded.Load(),
		LocalFoldersCreated:  w.localFoldersCreated.Load(),
		RemoteFoldersCreated: w.remoteFoldersCreated.Load(),
		Unchanged:            w.unchanged.Load(),
		Failed:               w.failed.Load(),
	}
}

// fail logs a per-item failure, marks the record (if any) as errored and
// records the failure in the sync history. The record's sizes and timestamps
// are left alone so the item is retried next cycle.
func (s *SyncService) fail(w *walk, rec *IndexRecord, path, remoteID, action string, err error) {
	w.failed.Add(1)
	s.logger.Error("sync action failed", "action", action, "path", path, "remote_id", remoteID, "error", err)

	if rec != nil {
		if serr := s.index.SetStatus(rec.ID, StatusError); serr != nil {
			s.logger.Warn("marking record as errored", "path", path, "error", serr)
		}
	}
	s.appendHistory(rec, path, remoteID, action, err)
}

func (s *SyncService) appendHistory(rec *IndexRecord, path, remoteID, action string, actionErr error) {
	entry := &HistoryEntry{
		RecordID:  KeyOf(rec),
		LocalPath: path,
		RemoteID:  remoteID,
		SyncedAt:  s.clock.Now().UTC(),
		Action:    action,
		Status:    HistorySuccess,
	}
	if actionErr != nil {
		entry.Status = HistoryFailed
		entry.ErrorMessage = actionErr.Error()
	}
	if err := s.index.AppendHistory(entry); err != nil {
		s.logger.Warn("recording sync history", "path", path, "action", action, "error", err)
	}
}

// lookupByRemoteID wraps index failures as fatal: a lookup that fails means
// the index itself is unusable.
func (s *SyncService) lookupByRemoteID(remoteID string) (*IndexRecord, error) {
	rec, err := s.index.FindByRemoteID(remoteID)
	if err != nil {
		return nil, Fatal(fmt.Errorf("looking up %s: %w", remoteID, err))
	}
	return rec, nil
}

func (s *SyncService) lookupByLocalPath(path string) (*IndexRecord, error) {
	rec, err := s.index.FindByLocalPath(path)
	if err != nil {
		return nil, Fatal(fmt.Errorf("looking up %s: %w", path, err))
	}
	return rec, nil
}

// checksumFor prefers the checksum reported by the remote and falls back to
// hashing the local file.
func (s *SyncService) checksumFor(path string, remoteChecksum string) string {
	if remoteChecksum != "" {
		return remoteChecksum
	}
	sum, err := s.fsmgr.Checksum(path)
	if err != nil {
		s.logger.Warn("computing checksum", "path", path, "error", err)
		return ""
	}
	return sum
}

// alignModTime sets the local file's mtime to the remote modification time
// so that equal size and equal time is the steady state after a transfer.
func (s *SyncService) alignModTime(path string, item *RemoteItem) {
	if item.ModifiedAt.IsZero() {
		return
	}
	if err := s.fsmgr.Chtimes(path, item.ModifiedAt); err != nil {
		s.logger.Warn("setting modification time", "path", path, "error", err)
	}
}
