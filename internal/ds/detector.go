package ds

import "time"

// Action is the outcome of change detection for one item.
type Action int

const (
	NoAction Action = iota
	NeedsDownload
	NeedsUpload
	NeedsCreateLocalFolder
	NeedsCreateRemoteFolder
)

func (a Action) String() string {
	switch a {
	case NoAction:
		return "no_action"
	case NeedsDownload:
		return "needs_download"
	case NeedsUpload:
		return "needs_upload"
	case NeedsCreateLocalFolder:
		return "needs_create_local_folder"
	case NeedsCreateRemoteFolder:
		return "needs_create_remote_folder"
	default:
		return "unknown"
	}
}

// DetectDownload decides whether a remote item must be materialized locally.
// local is nil when nothing exists at the item's local path. rec is the
// index record for the item, if any; the download direction compares live
// metadata on both sides so rec does not change the outcome when both sides
// are present.
func DetectDownload(rec *IndexRecord, local *LocalMeta, remote *RemoteItem) Action {
	if remote.IsFolder() {
		if local == nil {
			return NeedsCreateLocalFolder
		}
		return NoAction
	}

	// A directory in the file's place never counts as up to date; the
	// caller decides whether the download can proceed.
	if local == nil || local.IsDir {
		return NeedsDownload
	}

	return compareSides(remote.Size, remote.ModifiedAt, local.Size, local.ModifiedAt, NeedsDownload)
}

// DetectUpload decides whether a local item must be pushed to the remote.
// The remote side is the last-known state stored in rec, not a live query.
func DetectUpload(rec *IndexRecord, local *LocalMeta) Action {
	if local.IsDir {
		if rec == nil {
			return NeedsCreateRemoteFolder
		}
		return NoAction
	}

	if rec == nil {
		return NeedsUpload
	}

	return compareSides(local.Size, local.ModifiedAt, rec.RemoteSize, rec.RemoteModifiedAt, NeedsUpload)
}

// compareSides applies the size-first policy: a larger source wins, a smaller
// source never propagates, and equal sizes fall back to the strictly later
// modification time.
func compareSides(srcSize int64, srcTime time.Time, dstSize int64, dstTime time.Time, action Action) Action {
	if srcSize > dstSize {
		return action
	}
	if srcSize < dstSize {
		return NoAction
	}
	if NormalizeTime(srcTime).After(NormalizeTime(dstTime)) {
		return action
	}
	return NoAction
}
