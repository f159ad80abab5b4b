package ds

import (
	"fmt"
	"path/filepath"
)

// Resolver maps local paths and remote items to the index records of their
// parents. It only looks records up; creating them is left to the reconcilers.
type Resolver struct {
	index        Index
	localRoot    string
	rootFolderID string
	logger       Logger
}

// NewResolver creates a Resolver for the sync root pair (localRoot, rootFolderID).
func NewResolver(index Index, localRoot string, rootFolderID string, logger Logger) *Resolver {
	return &Resolver{
		index:        index,
		localRoot:    filepath.Clean(localRoot),
		rootFolderID: rootFolderID,
		logger:       logger,
	}
}

// LocalRoot returns the configured local root directory.
func (r *Resolver) LocalRoot() string {
	return r.localRoot
}

// RootFolderID returns the configured remote root folder.
func (r *Resolver) RootFolderID() string {
	return r.rootFolderID
}

// LocalParent returns the record of the folder containing path.
// It returns nil when the parent is the local root, or when the parent is
// not indexed yet, in which case the item is treated as a child of the root.
func (r *Resolver) LocalParent(path string) (*IndexRecord, error) {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == r.localRoot {
		return nil, nil
	}

	rec, err := r.index.FindByLocalPath(dir)
	if err != nil {
		return nil, Fatal(fmt.Errorf("looking up parent of %s: %w", path, err))
	}
	if rec == nil {
		r.logger.Warn("parent folder not indexed, treating as root", "path", path, "parent", dir)
	}
	return rec, nil
}

// Folder returns the record of a remote folder. The remote root, and any
// folder the index does not know, resolve to nil.
func (r *Resolver) Folder(remoteID string) (*IndexRecord, error) {
	if remoteID == "" || remoteID == r.rootFolderID {
		return nil, nil
	}

	rec, err := r.index.FindByRemoteID(remoteID)
	if err != nil {
		return nil, Fatal(fmt.Errorf("looking up folder %s: %w", remoteID, err))
	}
	if rec == nil {
		r.logger.Warn("remote folder not indexed, treating as root", "remote_id", remoteID)
	}
	return rec, nil
}

// RemoteParent returns the record of the folder that contains item.
func (r *Resolver) RemoteParent(item *RemoteItem) (*IndexRecord, error) {
	return r.Folder(item.ParentID)
}

// LocalDir returns the local directory that corresponds to parent.
func (r *Resolver) LocalDir(parent *IndexRecord) string {
	if parent == nil {
		return r.localRoot
	}
	return parent.LocalPath
}

// ChildPath returns the local path of a child called name under parent.
func (r *Resolver) ChildPath(parent *IndexRecord, name string) string {
	return filepath.Join(r.LocalDir(parent), name)
}

// RemoteFolderOf returns the remote folder ID that corresponds to parent.
func (r *Resolver) RemoteFolderOf(parent *IndexRecord) string {
	if parent == nil {
		return r.rootFolderID
	}
	return parent.RemoteID
}
