package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"drivesync/internal/ds"
)

const (
	driveFileFields = "id, name, mimeType, md5Checksum, size, modifiedTime, parents"
	driveListFields = "nextPageToken, files(" + driveFileFields + ")"
	drivePageSize   = 1000
)

// DriveStore implements ds.RemoteStore on the Google Drive v3 API.
type DriveStore struct {
	svc       *drive.Service
	chunkSize int
}

// NewDriveStore creates a Drive client authenticated by ts. Uploads are sent
// in resumable chunks of chunkSize bytes.
func NewDriveStore(ctx context.Context, ts oauth2.TokenSource, chunkSize int, opts ...option.ClientOption) (*DriveStore, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	return newDriveStore(ctx, chunkSize, opts...)
}

func newDriveStore(ctx context.Context, chunkSize int, opts ...option.ClientOption) (*DriveStore, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = googleapi.DefaultUploadChunkSize
	}
	return &DriveStore{svc: svc, chunkSize: chunkSize}, nil
}

// ListChildren pages through every non-trashed child of folderID. The
// items' ParentID is folderID, since Drive reports the resolved ID of the
// "root" alias rather than the alias itself.
func (d *DriveStore) ListChildren(ctx context.Context, folderID string) ([]*ds.RemoteItem, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	call := d.svc.Files.List().
		Q(q).
		Fields(googleapi.Field(driveListFields)).
		PageSize(drivePageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)

	var items []*ds.RemoteItem
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			item, err := toRemoteItem(f)
			if err != nil {
				return err
			}
			item.ParentID = folderID
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, classify(fmt.Errorf("listing children of %s: %w", folderID, err))
	}
	return items, nil
}

// GetMedia downloads raw content starting at offset. A server that ignores
// the Range header gets the skipped prefix discarded client side.
func (d *DriveStore) GetMedia(ctx context.Context, id string, offset int64) (*ds.MediaStream, error) {
	call := d.svc.Files.Get(id).SupportsAllDrives(true).Context(ctx)
	if offset > 0 {
		call.Header().Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := call.Download()
	if err != nil {
		return nil, classify(fmt.Errorf("downloading %s: %w", id, err))
	}

	length := resp.ContentLength
	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("skipping to offset %d of %s: %w", offset, id, err)
		}
		if length >= 0 {
			length -= offset
		}
	}
	return &ds.MediaStream{ReadCloser: resp.Body, Length: length}, nil
}

func (d *DriveStore) ExportMedia(ctx context.Context, id string, mimeType string) (*ds.MediaStream, error) {
	resp, err := d.svc.Files.Export(id, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, classify(fmt.Errorf("exporting %s as %s: %w", id, mimeType, err))
	}
	return &ds.MediaStream{ReadCloser: resp.Body, Length: resp.ContentLength}, nil
}

func (d *DriveStore) CreateFolder(ctx context.Context, name string, parentID string) (string, error) {
	f, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: ds.FolderMimeType,
		Parents:  []string{parentID},
	}).
		Fields(googleapi.Field("id")).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify(fmt.Errorf("creating folder %s: %w", name, err))
	}
	return f.Id, nil
}

func (d *DriveStore) CreateFile(ctx context.Context, name string, parentID string, mimeType string, content io.Reader, size int64) (*ds.RemoteItem, error) {
	f, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).
		Media(content, googleapi.ContentType(mimeType), googleapi.ChunkSize(d.chunkSize)).
		Fields(googleapi.Field(driveFileFields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(fmt.Errorf("creating file %s: %w", name, err))
	}
	return toRemoteItem(f)
}

func (d *DriveStore) UpdateFile(ctx context.Context, id string, mimeType string, content io.Reader, size int64) (*ds.RemoteItem, error) {
	f, err := d.svc.Files.Update(id, &drive.File{}).
		Media(content, googleapi.ContentType(mimeType), googleapi.ChunkSize(d.chunkSize)).
		Fields(googleapi.Field(driveFileFields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(fmt.Errorf("updating file %s: %w", id, err))
	}
	return toRemoteItem(f)
}

func (d *DriveStore) GetItem(ctx context.Context, id string) (*ds.RemoteItem, error) {
	f, err := d.svc.Files.Get(id).
		Fields(googleapi.Field(driveFileFields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(fmt.Errorf("getting %s: %w", id, err))
	}
	return toRemoteItem(f)
}

func toRemoteItem(f *drive.File) (*ds.RemoteItem, error) {
	item := &ds.RemoteItem{
		ID:       f.Id,
		Name:     f.Name,
		Kind:     ds.KindFile,
		MimeType: f.MimeType,
		Checksum: f.Md5Checksum,
		Size:     f.Size,
	}
	if f.MimeType == ds.FolderMimeType {
		item.Kind = ds.KindFolder
	}
	if len(f.Parents) > 0 {
		item.ParentID = f.Parents[0]
	}
	if f.ModifiedTime != "" {
		t, err := time.Parse(time.RFC3339, f.ModifiedTime)
		if err != nil {
			return nil, fmt.Errorf("parsing modifiedTime of %s: %w", f.Id, err)
		}
		item.ModifiedAt = t.UTC()
	}
	return item, nil
}

// escapeQuery escapes a value for use inside single quotes in a Drive query.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// classify marks credential failures as fatal so the cycle aborts instead of
// failing every item in turn.
func classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return ds.Fatal(err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return ds.Fatal(err)
	}
	return err
}

// Compile-time check that DriveStore implements ds.RemoteStore interface
var _ ds.RemoteStore = (*DriveStore)(nil)
