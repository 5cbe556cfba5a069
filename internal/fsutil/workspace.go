package fsutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// Workspace owns the directory and name counter for scratch grid files.
// Every disk-backed grid receives one at construction, so two workspaces
// never share names and tests can use an isolated directory each.
type Workspace struct {
	FS  FileSystem
	Dir string

	counter atomic.Int64
}

// NewWorkspace creates dir on fsys and returns a workspace rooted there.
func NewWorkspace(fsys FileSystem, dir string) (*Workspace, error) {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %s: %w", dir, err)
	}
	return &Workspace{FS: fsys, Dir: dir}, nil
}

// NewRunWorkspace creates a uniquely named scratch directory below root.
func NewRunWorkspace(fsys FileSystem, root string) (*Workspace, error) {
	return NewWorkspace(fsys, filepath.Join(root, "crava-"+uuid.NewString()))
}

// NextName returns a fresh scratch file name: tmpgrid0, tmpgrid1, ...
func (w *Workspace) NextName() string {
	n := w.counter.Add(1) - 1
	return filepath.Join(w.Dir, fmt.Sprintf("tmpgrid%d", n))
}

// Issued reports how many names have been handed out.
func (w *Workspace) Issued() int64 {
	return w.counter.Load()
}

// Cleanup removes the scratch directory and anything left in it.
func (w *Workspace) Cleanup() error {
	return w.FS.RemoveAll(w.Dir)
}
