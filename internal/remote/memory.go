package remote

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"drivesync/internal/ds"
)

// MemoryRootID is the ID of the root folder of a MemoryStore.
const MemoryRootID = "root"

// ErrNotFound is returned by MemoryStore for an unknown item ID.
var ErrNotFound = errors.New("remote item not found")

type memoryItem struct {
	item     ds.RemoteItem
	content  []byte
	exported []byte // only set for native documents
}

// MemoryStore is an in-memory implementation of ds.RemoteStore.
// It is useful for testing and supports failure injection.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	clock ds.Clock
	ids   ds.IDGenerator

	mu         sync.RWMutex
	items      map[string]*memoryItem
	failures   map[string]error
	interrupts map[string]int64
	downloads  map[string]int
	exports    map[string]int
	uploads    map[string]int
}

// NewMemoryStore creates an empty store holding only the root folder.
func NewMemoryStore(clock ds.Clock, ids ds.IDGenerator) *MemoryStore {
	m := &MemoryStore{
		clock:      clock,
		ids:        ids,
		items:      make(map[string]*memoryItem),
		failures:   make(map[string]error),
		interrupts: make(map[string]int64),
		downloads:  make(map[string]int),
		exports:    make(map[string]int),
		uploads:    make(map[string]int),
	}
	m.items[MemoryRootID] = &memoryItem{item: ds.RemoteItem{
		ID:         MemoryRootID,
		Name:       "My Drive",
		Kind:       ds.KindFolder,
		MimeType:   ds.FolderMimeType,
		ModifiedAt: clock.Now().UTC(),
	}}
	return m
}

// Test setup helpers

// AddFolder creates a folder under parentID without going through CreateFolder.
func (m *MemoryStore) AddFolder(name, parentID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.ids.New()
	m.items[id] = &memoryItem{item: ds.RemoteItem{
		ID:         id,
		Name:       name,
		Kind:       ds.KindFolder,
		MimeType:   ds.FolderMimeType,
		ModifiedAt: m.clock.Now().UTC(),
		ParentID:   parentID,
	}}
	return id
}

// AddFile stores a regular file with the given content and modification time.
func (m *MemoryStore) AddFile(name, parentID string, content []byte, modifiedAt time.Time) *ds.RemoteItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.ids.New()
	it := &memoryItem{
		item: ds.RemoteItem{
			ID:         id,
			Name:       name,
			Kind:       ds.KindFile,
			MimeType:   ds.DetectMimeType(name),
			ModifiedAt: modifiedAt.UTC(),
			Checksum:   md5Hex(content),
			Size:       int64(len(content)),
			ParentID:   parentID,
		},
		content: bytes.Clone(content),
	}
	m.items[id] = it
	item := it.item
	return &item
}

// AddNativeDocument stores a remote-native document whose exported form is
// exported. Like Drive, its reported size is zero.
func (m *MemoryStore) AddNativeDocument(name, parentID, mimeType string, exported []byte, modifiedAt time.Time) *ds.RemoteItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.ids.New()
	it := &memoryItem{
		item: ds.RemoteItem{
			ID:         id,
			Name:       name,
			Kind:       ds.KindFile,
			MimeType:   mimeType,
			ModifiedAt: modifiedAt.UTC(),
			ParentID:   parentID,
		},
		exported: bytes.Clone(exported),
	}
	m.items[id] = it
	item := it.item
	return &item
}

// SetContent replaces a file's content as if another client edited it.
func (m *MemoryStore) SetContent(id string, content []byte, modifiedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	it.content = bytes.Clone(content)
	it.item.Size = int64(len(content))
	it.item.Checksum = md5Hex(content)
	it.item.ModifiedAt = modifiedAt.UTC()
	return nil
}

// Content returns a copy of a file's stored bytes.
func (m *MemoryStore) Content(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[id]
	if !ok {
		return nil, false
	}
	return bytes.Clone(it.content), true
}

// Find returns the child of parentID named name.
func (m *MemoryStore) Find(parentID, name string) (*ds.RemoteItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, it := range m.items {
		if it.item.ParentID == parentID && it.item.Name == name && it.item.ID != MemoryRootID {
			item := it.item
			return &item, true
		}
	}
	return nil, false
}

// Failure injection

// FailOn makes every operation addressed to key fail with err. key is an
// item ID for reads and updates, a folder ID for listings, or the new item's
// name for creations.
func (m *MemoryStore) FailOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = err
}

// ClearFailure removes an injected failure.
func (m *MemoryStore) ClearFailure(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failures, key)
}

// InterruptOnce makes the next GetMedia stream for id fail after n bytes.
func (m *MemoryStore) InterruptOnce(id string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interrupts[id] = n
}

// Counters

// Downloads returns how many GetMedia streams were opened for id.
func (m *MemoryStore) Downloads(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloads[id]
}

// Exports returns how many ExportMedia streams were opened for id.
func (m *MemoryStore) Exports(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exports[id]
}

// Uploads returns how many times content was written for id.
func (m *MemoryStore) Uploads(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploads[id]
}

// TotalUploads returns the number of content writes across all items.
func (m *MemoryStore) TotalUploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.uploads {
		total += n
	}
	return total
}

// ds.RemoteStore

func (m *MemoryStore) ListChildren(ctx context.Context, folderID string) ([]*ds.RemoteItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failures[folderID]; err != nil {
		return nil, err
	}
	folder, ok := m.items[folderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, folderID)
	}
	if !folder.item.IsFolder() {
		return nil, fmt.Errorf("%s is not a folder", folderID)
	}

	var children []*ds.RemoteItem
	for _, it := range m.items {
		if it.item.ParentID == folderID && it.item.ID != MemoryRootID {
			item := it.item
			children = append(children, &item)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Name < children[j].Name
	})
	return children, nil
}

func (m *MemoryStore) GetMedia(ctx context.Context, id string, offset int64) (*ds.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[id]; err != nil {
		return nil, err
	}
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if it.item.IsFolder() {
		return nil, fmt.Errorf("cannot download folder %s", id)
	}
	if ds.IsNativeDocument(it.item.MimeType) {
		return nil, fmt.Errorf("%s is a native document and must be exported", id)
	}
	if offset < 0 || offset > int64(len(it.content)) {
		return nil, fmt.Errorf("offset %d out of range for %s (%d bytes)", offset, id, len(it.content))
	}
	m.downloads[id]++

	rest := bytes.Clone(it.content[offset:])
	var r io.Reader = bytes.NewReader(rest)
	if n, ok := m.interrupts[id]; ok {
		delete(m.interrupts, id)
		r = &interruptedReader{r: io.LimitReader(r, n)}
	}
	return &ds.MediaStream{ReadCloser: io.NopCloser(r), Length: int64(len(rest))}, nil
}

func (m *MemoryStore) ExportMedia(ctx context.Context, id string, mimeType string) (*ds.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[id]; err != nil {
		return nil, err
	}
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	format := ds.ExportFormatFor(it.item.MimeType)
	if format == nil {
		return nil, fmt.Errorf("%s (%s) cannot be exported", id, it.item.MimeType)
	}
	if format.MimeType != mimeType {
		return nil, fmt.Errorf("export of %s to %s not supported", it.item.MimeType, mimeType)
	}
	m.exports[id]++

	// Exports do not report a length, as with Drive.
	return &ds.MediaStream{ReadCloser: io.NopCloser(bytes.NewReader(bytes.Clone(it.exported))), Length: -1}, nil
}

func (m *MemoryStore) CreateFolder(ctx context.Context, name string, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[name]; err != nil {
		return "", err
	}
	if err := m.checkParent(parentID); err != nil {
		return "", err
	}

	id := m.ids.New()
	m.items[id] = &memoryItem{item: ds.RemoteItem{
		ID:         id,
		Name:       name,
		Kind:       ds.KindFolder,
		MimeType:   ds.FolderMimeType,
		ModifiedAt: m.clock.Now().UTC(),
		ParentID:   parentID,
	}}
	return id, nil
}

func (m *MemoryStore) CreateFile(ctx context.Context, name string, parentID string, mimeType string, content io.Reader, size int64) (*ds.RemoteItem, error) {
	data, err := readContent(ctx, content, size)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[name]; err != nil {
		return nil, err
	}
	if err := m.checkParent(parentID); err != nil {
		return nil, err
	}

	id := m.ids.New()
	it := &memoryItem{
		item: ds.RemoteItem{
			ID:         id,
			Name:       name,
			Kind:       ds.KindFile,
			MimeType:   mimeType,
			ModifiedAt: m.clock.Now().UTC(),
			Checksum:   md5Hex(data),
			Size:       int64(len(data)),
			ParentID:   parentID,
		},
		content: data,
	}
	m.items[id] = it
	m.uploads[id]++
	item := it.item
	return &item, nil
}

func (m *MemoryStore) UpdateFile(ctx context.Context, id string, mimeType string, content io.Reader, size int64) (*ds.RemoteItem, error) {
	data, err := readContent(ctx, content, size)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failures[id]; err != nil {
		return nil, err
	}
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if it.item.IsFolder() || ds.IsNativeDocument(it.item.MimeType) {
		return nil, fmt.Errorf("%s cannot be overwritten with content", id)
	}

	it.content = data
	it.item.MimeType = mimeType
	it.item.Size = int64(len(data))
	it.item.Checksum = md5Hex(data)
	it.item.ModifiedAt = m.clock.Now().UTC()
	m.uploads[id]++
	item := it.item
	return &item, nil
}

func (m *MemoryStore) GetItem(ctx context.Context, id string) (*ds.RemoteItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failures[id]; err != nil {
		return nil, err
	}
	it, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	item := it.item
	return &item, nil
}

// checkParent requires m.mu to be held.
func (m *MemoryStore) checkParent(parentID string) error {
	parent, ok := m.items[parentID]
	if !ok {
		return fmt.Errorf("parent %w: %s", ErrNotFound, parentID)
	}
	if !parent.item.IsFolder() {
		return fmt.Errorf("parent %s is not a folder", parentID)
	}
	return nil
}

func readContent(ctx context.Context, content io.Reader, size int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	return data, nil
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// interruptedReader simulates a dropped connection once the wrapped
// limited reader is exhausted.
type interruptedReader struct {
	r io.Reader
}

func (ir *interruptedReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

// Compile-time check that MemoryStore implements ds.RemoteStore interface
var _ ds.RemoteStore = (*MemoryStore)(nil)
