package gridio

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/crava/internal/fsutil"
	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/monitoring"
	"github.com/banshee-data/crava/internal/security"
	"github.com/banshee-data/crava/internal/simbox"
)

// File name suffixes per format.
const (
	StormExt      = ".storm"
	StormASCIIExt = ".txt"
	SegyExt       = ".segy"
)

// Writer is the grid.Sink that places output files in Dir. Names are
// sanitized, so a stack or facies label cannot move a file elsewhere.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string

	written []string
}

// NewWriter returns a writer for dir, creating it if needed.
func NewWriter(fsys fsutil.FileSystem, dir string) (*Writer, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Writer{FS: fsys, Dir: dir}, nil
}

// Written returns the paths written so far, in order.
func (w *Writer) Written() []string { return w.written }

func (w *Writer) WriteStorm(name string, box *simbox.Simbox, vol grid.Volume, ascii bool) error {
	ext := StormExt
	if ascii {
		ext = StormASCIIExt
	}
	return w.write(security.SanitizeFilename(name)+ext, func(f io.Writer) error { return WriteStorm(f, box, vol, ascii) })
}

func (w *Writer) WriteSegy(name string, box *simbox.Simbox, vol grid.Volume) error {
	return w.write(security.SanitizeFilename(name)+SegyExt, func(f io.Writer) error { return WriteSegy(f, box, vol) })
}

func (w *Writer) write(file string, fn func(f io.Writer) error) error {
	path := filepath.Join(w.Dir, file)
	if _, onDisk := w.FS.(fsutil.OSFileSystem); onDisk {
		if err := security.ValidatePathWithinDirectory(path, w.Dir); err != nil {
			return err
		}
	}
	f, err := w.FS.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	err = fn(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.written = append(w.written, path)
	monitoring.Logf("[gridio] wrote %s", path)
	return nil
}

// ReadStormFile reads a Storm cube through fsys.
func ReadStormFile(fsys fsutil.FileSystem, path string) (*StormCube, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	c, err := ReadStorm(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return c, nil
}
