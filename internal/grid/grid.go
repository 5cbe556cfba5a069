package grid

import (
	"fmt"

	"github.com/banshee-data/crava/internal/fsutil"
	"github.com/banshee-data/crava/internal/simbox"
)

// Missing is returned for reads outside the logical extents.
const Missing float32 = simbox.Missing

// Domain tells how the buffer is interpreted.
type Domain int

const (
	Spatial Domain = iota
	Frequency
)

func (d Domain) String() string {
	if d == Frequency {
		return "FREQUENCY"
	}
	return "SPATIAL"
}

// Dims holds the logical and padded extents of a grid.
type Dims struct {
	NX, NY, NZ    int
	NXP, NYP, NZP int
}

// NewDims validates logical and padded extents.
func NewDims(nx, ny, nz, nxp, nyp, nzp int) (Dims, error) {
	d := Dims{NX: nx, NY: ny, NZ: nz, NXP: nxp, NYP: nyp, NZP: nzp}
	if nx < 1 || ny < 1 || nz < 1 {
		return Dims{}, fmt.Errorf("grid extents must be positive, got %dx%dx%d", nx, ny, nz)
	}
	if nxp < nx || nyp < ny || nzp < nz {
		return Dims{}, fmt.Errorf("padded extents %dx%dx%d smaller than logical %dx%dx%d", nxp, nyp, nzp, nx, ny, nz)
	}
	return d, nil
}

// DimsFromSimbox sizes a grid for box with the given relative padding.
func DimsFromSimbox(box *simbox.Simbox, fx, fy, fz float64) Dims {
	nxp, nyp, nzp := box.PaddedExtents(fx, fy, fz)
	return Dims{NX: box.NX, NY: box.NY, NZ: box.NZ, NXP: nxp, NYP: nyp, NZP: nzp}
}

// CNXP is the number of complex coefficients kept per x row.
func (d Dims) CNXP() int { return d.NXP/2 + 1 }

// RNXP is the number of float32 slots per x row.
func (d Dims) RNXP() int { return 2 * d.CNXP() }

// RSize is the number of float32 slots in the buffer.
func (d Dims) RSize() int { return d.RNXP() * d.NYP * d.NZP }

// CSize is the number of complex slots in the buffer.
func (d Dims) CSize() int { return d.CNXP() * d.NYP * d.NZP }

// N is the number of padded real samples, the FFT normalisation.
func (d Dims) N() int { return d.NXP * d.NYP * d.NZP }

// RealIndex maps (i, j, k) to a float32 slot.
func (d Dims) RealIndex(i, j, k int) int { return i + d.RNXP()*j + k*d.RNXP()*d.NYP }

// ComplexIndex maps wavenumber indices (i < CNXP) to a complex slot.
func (d Dims) ComplexIndex(i, j, k int) int { return i + d.CNXP()*j + k*d.CNXP()*d.NYP }

// Logical reports whether (i, j, k) is inside the unpadded volume.
func (d Dims) Logical(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < d.NX && j < d.NY && k < d.NZ
}

// SamePadding reports whether two grids can be combined element-wise.
func (d Dims) SamePadding(o Dims) bool {
	return d.NXP == o.NXP && d.NYP == o.NYP && d.NZP == o.NZP
}

// NormalSource supplies standard normal draws, e.g. *rand.Rand.
type NormalSource interface {
	NormFloat64() float64
}

// Grid is the capability set shared by MemoryGrid and FileGrid.
type Grid interface {
	Dims() Dims
	Domain() Domain
	Mode() AccessMode

	// CreateRealGrid and CreateComplexGrid reset the grid to zeros in the
	// given domain. They panic while a session is open.
	CreateRealGrid()
	CreateComplexGrid()

	// SetAccessMode opens a session; only legal from None.
	SetAccessMode(mode AccessMode) error
	// EndAccess closes the session, persisting writes, and reports any
	// I/O error recorded while streaming.
	EndAccess() error

	NextReal() float32
	SetNextReal(v float32)
	NextComplex() complex64
	SetNextComplex(v complex64)

	// RealValue returns Missing outside the logical extents.
	RealValue(i, j, k int) float32
	// SetRealValue reports false and leaves the buffer untouched outside
	// the logical extents.
	SetRealValue(i, j, k int, v float32) bool

	FFTInPlace() error
	InvFFTInPlace() error

	Add(other Grid) error
	Multiply(other Grid) error
	MultiplyByScalar(s float32) error
	Square() error
	ExpTransf() error
	// LogTransf returns the number of non-positive samples set to zero.
	LogTransf() (int, error)
	CollapseAndAdd(dst []float32) error
	FillInComplexNoise(rng NormalSource) error

	WriteFile(name string, box *simbox.Simbox, formats Format, sink Sink) error
	WriteStormFile(name string, box *simbox.Simbox, ascii bool, sink Sink) error
	WriteSegyFile(name string, box *simbox.Simbox, sink Sink) error

	// Close ends any open session and releases backing storage.
	Close() error
}

// New creates a zeroed spatial grid, disk-backed when onDisk is set.
func New(ws *fsutil.Workspace, d Dims, onDisk bool) Grid {
	if onDisk {
		return NewFileGrid(ws, d)
	}
	return NewMemoryGrid(d)
}

// Copy streams src into dst, which must have the same padded shape.
// dst takes over src's domain.
func Copy(dst, src Grid) error {
	if !dst.Dims().SamePadding(src.Dims()) {
		violate("Copy", dst.Mode(), dst.Domain(), "padded shapes differ")
	}
	if src.Domain() == Frequency {
		dst.CreateComplexGrid()
	} else {
		dst.CreateRealGrid()
	}
	if err := dst.SetAccessMode(Write); err != nil {
		return err
	}
	if err := src.SetAccessMode(Read); err != nil {
		dst.EndAccess()
		return err
	}
	d := src.Dims()
	if src.Domain() == Frequency {
		for i := 0; i < d.CSize(); i++ {
			dst.SetNextComplex(src.NextComplex())
		}
	} else {
		for i := 0; i < d.RSize(); i++ {
			dst.SetNextReal(src.NextReal())
		}
	}
	errSrc := src.EndAccess()
	errDst := dst.EndAccess()
	if errSrc != nil {
		return errSrc
	}
	return errDst
}

// Clone returns a new grid of the requested realization holding src's data.
func Clone(ws *fsutil.Workspace, src Grid, onDisk bool) (Grid, error) {
	dst := New(ws, src.Dims(), onDisk)
	if err := Copy(dst, src); err != nil {
		dst.Close()
		return nil, err
	}
	return dst, nil
}
