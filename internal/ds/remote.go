package ds

import (
	"context"
	"io"
	"time"
)

// FolderMimeType is the MIME type Drive uses for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// RemoteItem describes one child of a remote folder.
type RemoteItem struct {
	ID         string
	Name       string
	Kind       Kind
	MimeType   string
	ModifiedAt time.Time
	Checksum   string
	Size       int64
	ParentID   string
}

// IsFolder reports whether the item is a remote folder.
func (i *RemoteItem) IsFolder() bool {
	return i.Kind == KindFolder
}

// MediaStream is a byte stream returned by the remote store. Length is -1
// when the store does not know the size up front.
type MediaStream struct {
	io.ReadCloser
	Length int64
}

// RemoteStore is the client for the remote hierarchical file store.
type RemoteStore interface {
	// ListChildren returns the direct children of a folder.
	ListChildren(ctx context.Context, folderID string) ([]*RemoteItem, error)

	// GetMedia streams the raw content of a file starting at offset.
	GetMedia(ctx context.Context, id string, offset int64) (*MediaStream, error)

	// ExportMedia streams a native document converted to mimeType.
	ExportMedia(ctx context.Context, id string, mimeType string) (*MediaStream, error)

	// CreateFolder creates a folder under parentID and returns its ID.
	CreateFolder(ctx context.Context, name string, parentID string) (string, error)

	// CreateFile uploads a new file under parentID.
	CreateFile(ctx context.Context, name string, parentID string, mimeType string, content io.Reader, size int64) (*RemoteItem, error)

	// UpdateFile replaces the content of an existing file.
	UpdateFile(ctx context.Context, id string, mimeType string, content io.Reader, size int64) (*RemoteItem, error)

	// GetItem fetches the descriptor of a single item.
	GetItem(ctx context.Context, id string) (*RemoteItem, error)
}

// ExportFormat is the interchange format a native document is materialized as.
type ExportFormat struct {
	MimeType  string
	Extension string
}

var exportFormats = map[string]ExportFormat{
	"application/vnd.google-apps.document": {
		MimeType:  "application/pdf",
		Extension: ".pdf",
	},
	"application/vnd.google-apps.spreadsheet": {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	"application/vnd.google-apps.presentation": {
		MimeType:  "application/pdf",
		Extension: ".pdf",
	},
}

// ExportFormatFor returns the export format for a native document MIME type,
// or nil when the type is downloaded as raw bytes.
func ExportFormatFor(mimeType string) *ExportFormat {
	f, ok := exportFormats[mimeType]
	if !ok {
		return nil
	}
	return &f
}

// IsNativeDocument reports whether mimeType is a remote-native document that
// can only be exported, never overwritten with local content.
func IsNativeDocument(mimeType string) bool {
	return ExportFormatFor(mimeType) != nil
}

// LocalName returns the leaf name an item is stored under locally.
func LocalName(item *RemoteItem) string {
	if f := ExportFormatFor(item.MimeType); f != nil {
		return item.Name + f.Extension
	}
	return item.Name
}
