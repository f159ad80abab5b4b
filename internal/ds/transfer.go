package ds

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
)

// TempFilePattern names the partial files downloads are staged in. They live
// next to their destination so the final rename stays on one filesystem.
const TempFilePattern = ".drivesync-*.part"

const (
	defaultChunkSize   = 8 << 20
	defaultMaxAttempts = 3
)

// TransferOptions tunes the transfer executor.
type TransferOptions struct {
	ChunkSize   int
	MaxAttempts int
	Progress    ProgressFunc
}

// TransferExecutor moves the bytes of one file in one direction.
type TransferExecutor struct {
	remote      RemoteStore
	fsmgr       FilesystemManager
	logger      Logger
	chunkSize   int
	maxAttempts int
	progress    ProgressFunc
}

// NewTransferExecutor creates a TransferExecutor. Zero options fall back to
// 8 MiB chunks and three attempts per download.
func NewTransferExecutor(remote RemoteStore, fsmgr FilesystemManager, logger Logger, opts TransferOptions) *TransferExecutor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &TransferExecutor{
		remote:      remote,
		fsmgr:       fsmgr,
		logger:      logger,
		chunkSize:   opts.ChunkSize,
		maxAttempts: opts.MaxAttempts,
		progress:    opts.Progress,
	}
}

// Download writes the content of a remote file to destPath and returns the
// number of bytes written. When export is non-nil the item is converted to
// that format. Content is staged in a temporary file and renamed into place,
// so destPath is either untouched or complete. A raw download interrupted by
// a transport error resumes from the bytes already written.
func (t *TransferExecutor) Download(ctx context.Context, remoteID string, export *ExportFormat, destPath string) (int64, error) {
	tmp, err := t.fsmgr.CreateTemp(filepath.Dir(destPath), TempFilePattern)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false
	renamed := false
	defer func() {
		if !closed {
			tmp.Close()
		}
		if !renamed {
			t.fsmgr.Remove(tmpPath)
		}
	}()

	tracker := newProgressTracker(t.progress, DirectionDownload, destPath, remoteID, -1)
	tracker.start()

	var written int64
	for attempt := 1; ; attempt++ {
		n, err := t.fetch(ctx, remoteID, export, written, tmp, tracker)
		written += n
		if err == nil {
			break
		}
		// Exports are generated on the fly and cannot be resumed mid-stream.
		resumable := export == nil || written == 0
		if attempt >= t.maxAttempts || !resumable || ctx.Err() != nil || IsFatal(err) {
			return written, fmt.Errorf("downloading %s: %w", remoteID, err)
		}
		t.logger.Warn("download interrupted, resuming",
			"remote_id", remoteID, "offset", written, "attempt", attempt, "error", err)
	}

	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("syncing temp file: %w", err)
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("closing temp file: %w", err)
	}
	if err := t.fsmgr.Rename(tmpPath, destPath); err != nil {
		return written, fmt.Errorf("moving download into place: %w", err)
	}
	renamed = true

	tracker.finish(written)
	t.logger.Debug("download complete", "remote_id", remoteID, "path", destPath, "bytes", written)
	return written, nil
}

// fetch copies one stream from the remote into w starting at offset.
func (t *TransferExecutor) fetch(ctx context.Context, remoteID string, export *ExportFormat, offset int64, w io.Writer, tracker *progressTracker) (int64, error) {
	var stream *MediaStream
	var err error
	if export != nil {
		stream, err = t.remote.ExportMedia(ctx, remoteID, export.MimeType)
	} else {
		stream, err = t.remote.GetMedia(ctx, remoteID, offset)
	}
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	if stream.Length >= 0 {
		tracker.setTotal(offset + stream.Length)
	}

	buf := make([]byte, t.chunkSize)
	pw := &progressWriter{w: w, tracker: tracker, offset: offset}
	return io.CopyBuffer(pw, stream, buf)
}

// Upload sends a local file to the remote. With an empty existingRemoteID a
// new file is created under remoteParentID; otherwise the existing file's
// content is replaced. Chunking and resumption happen inside the remote
// client.
func (t *TransferExecutor) Upload(ctx context.Context, localPath string, remoteParentID string, existingRemoteID string) (*RemoteItem, error) {
	info, err := t.fsmgr.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	f, err := t.fsmgr.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	size := info.Size()
	mimeType := DetectMimeType(localPath)
	tracker := newProgressTracker(t.progress, DirectionUpload, localPath, existingRemoteID, size)
	tracker.start()
	content := &progressReader{r: f, tracker: tracker}

	var item *RemoteItem
	if existingRemoteID == "" {
		item, err = t.remote.CreateFile(ctx, filepath.Base(localPath), remoteParentID, mimeType, content, size)
	} else {
		item, err = t.remote.UpdateFile(ctx, existingRemoteID, mimeType, content, size)
	}
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", localPath, err)
	}

	tracker.finish(size)
	t.logger.Debug("upload complete", "remote_id", item.ID, "path", localPath, "bytes", size)
	return item, nil
}

// DetectMimeType guesses a MIME type from the file extension.
func DetectMimeType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
