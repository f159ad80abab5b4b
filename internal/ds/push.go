package ds

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// push mirrors the local root into the remote root folder.
func (s *SyncService) push(ctx context.Context, w *walk) error {
	return s.pushDir(ctx, w, s.resolver.LocalRoot(), s.resolver.RootFolderID())
}

// pushDir reconciles the entries of one local directory, top down.
func (s *SyncService) pushDir(ctx context.Context, w *walk, dir string, remoteFolderID string) error {
	entries, err := s.fsmgr.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	var walkErr error
	for _, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		path := filepath.Join(dir, entry.Name())

		ignored, err := s.fsmgr.IsIgnored(path, s.resolver.LocalRoot(), entry.IsDir())
		if err != nil {
			s.logger.Warn("checking ignore rules", "path", path, "error", err)
			continue
		}
		if ignored {
			continue
		}

		if entry.IsDir() {
			if err := s.pushSubdir(gctx, w, path, remoteFolderID); err != nil {
				walkErr = err
				break
			}
			continue
		}

		if !entry.Type().IsRegular() {
			s.logger.Debug("skipping special file", "path", path)
			continue
		}

		if err := w.sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer w.sem.Release(1)
			return s.pushFile(gctx, w, path, remoteFolderID)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if walkErr != nil {
		return walkErr
	}
	return ctx.Err()
}

// pushSubdir makes sure a local directory has a remote folder, then recurses.
func (s *SyncService) pushSubdir(ctx context.Context, w *walk, path string, remoteParentID string) error {
	rec, err := s.lookupByLocalPath(path)
	if err != nil {
		return err
	}

	local, err := StatLocal(s.fsmgr, path)
	if err != nil || local == nil {
		s.fail(w, rec, path, "", ActionCreateRemoteFolder, missingErr(path, err))
		return nil
	}

	if rec != nil && !rec.IsFolder() {
		s.fail(w, rec, path, rec.RemoteID, ActionCreateRemoteFolder, fmt.Errorf("%s is indexed as a file", path))
		return nil
	}

	if DetectUpload(rec, local) == NeedsCreateRemoteFolder {
		rec, err = s.createRemoteFolder(ctx, w, path, remoteParentID, local)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}
	}

	if err := s.pushDir(ctx, w, path, rec.RemoteID); err != nil {
		if IsFatal(err) || ctx.Err() != nil {
			return err
		}
		w.failed.Add(1)
		s.logger.Error("local directory skipped", "path", path, "remote_id", rec.RemoteID, "error", err)
	}
	return nil
}

// createRemoteFolder creates and indexes the remote counterpart of a local
// directory. It returns a nil record when the failure is confined to this
// directory.
func (s *SyncService) createRemoteFolder(ctx context.Context, w *walk, path string, remoteParentID string, local *LocalMeta) (*IndexRecord, error) {
	name := filepath.Base(path)
	id, err := s.remote.CreateFolder(ctx, name, remoteParentID)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		s.fail(w, nil, path, "", ActionCreateRemoteFolder, err)
		return nil, nil
	}

	item, err := s.remote.GetItem(ctx, id)
	if err != nil {
		if IsFatal(err) {
			return nil, err
		}
		s.logger.Warn("fetching created folder", "remote_id", id, "error", err)
		item = &RemoteItem{ID: id, Name: name, Kind: KindFolder, MimeType: FolderMimeType, ParentID: remoteParentID}
	}

	parent, err := s.resolver.LocalParent(path)
	if err != nil {
		return nil, err
	}

	stored, err := s.index.Upsert(&IndexRecord{
		Kind:             KindFolder,
		LocalPath:        path,
		RemoteID:         id,
		Name:             name,
		ParentID:         KeyOf(parent),
		MimeType:         item.MimeType,
		LocalModifiedAt:  NormalizeTime(local.ModifiedAt),
		RemoteModifiedAt: NormalizeTime(item.ModifiedAt),
		Status:           StatusSynced,
	})
	if err != nil {
		s.fail(w, nil, path, id, ActionCreateRemoteFolder, fmt.Errorf("indexing folder: %w", err))
		return nil, nil
	}

	w.remoteFoldersCreated.Add(1)
	s.appendHistory(stored, path, id, ActionCreateRemoteFolder, nil)
	s.logger.Info("remote folder created", "path", path, "remote_id", id)
	return stored, nil
}

// pushFile uploads one local file when the last-known remote state is stale.
func (s *SyncService) pushFile(ctx context.Context, w *walk, path string, remoteParentID string) error {
	rec, err := s.lookupByLocalPath(path)
	if err != nil {
		return err
	}

	local, err := StatLocal(s.fsmgr, path)
	if err != nil {
		s.fail(w, rec, path, "", ActionUpload, err)
		return nil
	}
	if local == nil {
		// Removed since the directory was listed.
		return nil
	}

	if rec != nil && IsNativeDocument(rec.MimeType) {
		w.unchanged.Add(1)
		s.logger.Debug("exported document is read-only locally", "path", path, "remote_id", rec.RemoteID)
		return nil
	}

	if DetectUpload(rec, local) == NoAction {
		w.unchanged.Add(1)
		return nil
	}

	existingID := ""
	if rec != nil {
		existingID = rec.RemoteID
	}

	item, err := s.transfer.Upload(ctx, path, remoteParentID, existingID)
	if err != nil {
		if IsFatal(err) {
			return err
		}
		s.fail(w, rec, path, existingID, ActionUpload, err)
		return nil
	}

	s.alignModTime(path, item)
	local, err = StatLocal(s.fsmgr, path)
	if err != nil || local == nil {
		s.fail(w, rec, path, item.ID, ActionUpload, missingErr(path, err))
		return nil
	}

	parent, err := s.resolver.LocalParent(path)
	if err != nil {
		return err
	}

	stored, err := s.index.Upsert(&IndexRecord{
		Kind:             KindFile,
		LocalPath:        path,
		RemoteID:         item.ID,
		Name:             filepath.Base(path),
		ParentID:         KeyOf(parent),
		MimeType:         item.MimeType,
		Checksum:         s.checksumFor(path, item.Checksum),
		LocalModifiedAt:  NormalizeTime(local.ModifiedAt),
		RemoteModifiedAt: NormalizeTime(item.ModifiedAt),
		Status:           StatusSynced,
		RemoteSize:       item.Size,
		LocalSize:        local.Size,
	})
	if err != nil {
		s.fail(w, rec, path, item.ID, ActionUpload, fmt.Errorf("indexing file: %w", err))
		return nil
	}

	w.uploaded.Add(1)
	s.appendHistory(stored, path, item.ID, ActionUpload, nil)
	s.logger.Info("file uploaded", "path", path, "remote_id", item.ID, "bytes", local.Size)
	return nil
}
