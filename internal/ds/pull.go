package ds

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// pull mirrors the remote tree under the root folder into the local root.
func (s *SyncService) pull(ctx context.Context, w *walk) error {
	if err := s.fsmgr.MkdirAll(s.resolver.LocalRoot()); err != nil {
		return fmt.Errorf("creating local root: %w", err)
	}
	return s.pullFolder(ctx, w, s.resolver.RootFolderID())
}

// pullFolder reconciles the children of one remote folder, depth first.
// Subfolders are handled in the calling goroutine so a folder is always
// indexed before its children; files fan out under the worker limit. The
// returned error is non-nil only when the folder cannot be listed, the walk
// was cancelled, or a fatal error occurred.
func (s *SyncService) pullFolder(ctx context.Context, w *walk, folderID string) error {
	items, err := s.remote.ListChildren(ctx, folderID)
	if err != nil {
		return fmt.Errorf("listing remote folder %s: %w", folderID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	var walkErr error
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		if item.ParentID == "" {
			item.ParentID = folderID
		}

		if item.IsFolder() {
			if err := s.pullSubfolder(gctx, w, item); err != nil {
				walkErr = err
				break
			}
			continue
		}

		if err := w.sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer w.sem.Release(1)
			return s.pullFile(gctx, w, item)
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

// pullSubfolder materializes one remote folder locally, indexes it and
// recurses into it. Failures confined to the folder are logged and swallowed.
func (s *SyncService) pullSubfolder(ctx context.Context, w *walk, item *RemoteItem) error {
	parent, err := s.resolver.RemoteParent(item)
	if err != nil {
		return err
	}
	path := s.resolver.ChildPath(parent, item.Name)

	rec, err := s.lookupByRemoteID(item.ID)
	if err != nil {
		return err
	}

	local, err := StatLocal(s.fsmgr, path)
	if err != nil {
		s.fail(w, rec, path, item.ID, ActionCreateLocalFolder, err)
		return nil
	}
	if local != nil && !local.IsDir {
		s.fail(w, rec, path, item.ID, ActionCreateLocalFolder, fmt.Errorf("%s exists and is not a directory", path))
		return nil
	}

	created := false
	if DetectDownload(rec, local, item) == NeedsCreateLocalFolder {
		if err := s.fsmgr.MkdirAll(path); err != nil {
			s.fail(w, rec, path, item.ID, ActionCreateLocalFolder, fmt.Errorf("creating directory: %w", err))
			return nil
		}
		created = true
		w.localFoldersCreated.Add(1)
		local, err = StatLocal(s.fsmgr, path)
		if err != nil || local == nil {
			s.fail(w, rec, path, item.ID, ActionCreateLocalFolder, missingErr(path, err))
			return nil
		}
	}

	stored, err := s.index.Upsert(&IndexRecord{
		Kind:             KindFolder,
		LocalPath:        path,
		RemoteID:         item.ID,
		Name:             item.Name,
		ParentID:         KeyOf(parent),
		MimeType:         item.MimeType,
		LocalModifiedAt:  NormalizeTime(local.ModifiedAt),
		RemoteModifiedAt: NormalizeTime(item.ModifiedAt),
		Status:           StatusSynced,
	})
	if err != nil {
		// Recursing without a record would misfile every child under the root.
		s.fail(w, rec, path, item.ID, ActionCreateLocalFolder, fmt.Errorf("indexing folder: %w", err))
		return nil
	}
	if created {
		s.appendHistory(stored, path, item.ID, ActionCreateLocalFolder, nil)
		s.logger.Info("local folder created", "path", path, "remote_id", item.ID)
	}

	if err := s.pullFolder(ctx, w, item.ID); err != nil {
		if IsFatal(err) || ctx.Err() != nil {
			return err
		}
		w.failed.Add(1)
		s.logger.Error("remote folder skipped", "path", path, "remote_id", item.ID, "error", err)
	}
	return nil
}

// pullFile downloads one remote file when the local copy is stale.
func (s *SyncService) pullFile(ctx context.Context, w *walk, item *RemoteItem) error {
	parent, err := s.resolver.RemoteParent(item)
	if err != nil {
		return err
	}
	name := LocalName(item)
	path := s.resolver.ChildPath(parent, name)

	rec, err := s.lookupByRemoteID(item.ID)
	if err != nil {
		return err
	}

	holder, err := s.lookupByLocalPath(path)
	if err != nil {
		return err
	}
	if holder != nil && holder.RemoteID != item.ID {
		s.logger.Warn("local path claimed by another remote item",
			"path", path, "remote_id", item.ID, "holder_remote_id", holder.RemoteID)
	}

	local, err := StatLocal(s.fsmgr, path)
	if err != nil {
		s.fail(w, rec, path, item.ID, ActionDownload, err)
		return nil
	}
	if local != nil && local.IsDir {
		s.fail(w, rec, path, item.ID, ActionDownload, fmt.Errorf("%s exists and is a directory", path))
		return nil
	}

	export := ExportFormatFor(item.MimeType)
	observed := item
	if export != nil && rec != nil {
		// Native documents report no size; the export recorded last time
		// stands in for it.
		view := *item
		view.Size = rec.RemoteSize
		observed = &view
	}

	if DetectDownload(rec, local, observed) == NoAction {
		w.unchanged.Add(1)
		if rec == nil {
			s.adopt(w, item, parent, name, path, local)
		}
		return nil
	}

	n, err := s.transfer.Download(ctx, item.ID, export, path)
	if err != nil {
		if IsFatal(err) {
			return err
		}
		s.fail(w, rec, path, item.ID, ActionDownload, err)
		return nil
	}

	s.alignModTime(path, item)
	local, err = StatLocal(s.fsmgr, path)
	if err != nil || local == nil {
		s.fail(w, rec, path, item.ID, ActionDownload, missingErr(path, err))
		return nil
	}

	remoteSize := item.Size
	if export != nil {
		remoteSize = n
	}

	stored, err := s.index.Upsert(&IndexRecord{
		Kind:             KindFile,
		LocalPath:        path,
		RemoteID:         item.ID,
		Name:             name,
		ParentID:         KeyOf(parent),
		MimeType:         item.MimeType,
		Checksum:         s.checksumFor(path, item.Checksum),
		LocalModifiedAt:  NormalizeTime(local.ModifiedAt),
		RemoteModifiedAt: NormalizeTime(item.ModifiedAt),
		Status:           StatusSynced,
		RemoteSize:       remoteSize,
		LocalSize:        local.Size,
	})
	if err != nil {
		s.fail(w, rec, path, item.ID, ActionDownload, fmt.Errorf("indexing file: %w", err))
		return nil
	}

	w.downloaded.Add(1)
	s.appendHistory(stored, path, item.ID, ActionDownload, nil)
	s.logger.Info("file downloaded", "path", path, "remote_id", item.ID, "bytes", n)
	return nil
}

// adopt indexes a local file that already matches an unindexed remote file,
// so the local-to-remote pass does not upload it as a duplicate.
func (s *SyncService) adopt(w *walk, item *RemoteItem, parent *IndexRecord, name, path string, local *LocalMeta) {
	remoteSize := item.Size
	if IsNativeDocument(item.MimeType) {
		remoteSize = local.Size
	}

	stored, err := s.index.Upsert(&IndexRecord{
		Kind:             KindFile,
		LocalPath:        path,
		RemoteID:         item.ID,
		Name:             name,
		ParentID:         KeyOf(parent),
		MimeType:         item.MimeType,
		Checksum:         s.checksumFor(path, item.Checksum),
		LocalModifiedAt:  NormalizeTime(local.ModifiedAt),
		RemoteModifiedAt: NormalizeTime(item.ModifiedAt),
		Status:           StatusSynced,
		RemoteSize:       remoteSize,
		LocalSize:        local.Size,
	})
	if err != nil {
		s.fail(w, nil, path, item.ID, ActionAdopt, fmt.Errorf("indexing file: %w", err))
		return
	}
	s.appendHistory(stored, path, item.ID, ActionAdopt, nil)
	s.logger.Info("local file adopted", "path", path, "remote_id", item.ID)
}
