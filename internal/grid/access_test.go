package grid

import (
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crava/internal/fsutil"
)

func TestTransitionTable(t *testing.T) {
	for _, m := range []AccessMode{Read, Write, ReadAndWrite, RandomAccess} {
		assert.True(t, CanTransition(None, m), "None -> %s", m)
		assert.True(t, CanTransition(m, None), "%s -> None", m)
		for _, other := range []AccessMode{Read, Write, ReadAndWrite, RandomAccess} {
			assert.False(t, CanTransition(m, other), "%s -> %s", m, other)
		}
	}
	assert.False(t, CanTransition(None, None))
}

func requirePrecondition(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a precondition panic")
		_, ok := r.(*PreconditionError)
		require.True(t, ok, "panic value %v is not a *PreconditionError", r)
	}()
	fn()
}

func TestAccessDiscipline(t *testing.T) {
	d := mustDims(t, 2, 2, 2, 2, 2, 2)
	for _, f := range realizations() {
		t.Run(f.name, func(t *testing.T) {
			g := f.make(t, d)
			defer g.Close()

			// Reads and writes need a session of the right kind.
			requirePrecondition(t, func() { g.NextReal() })
			requirePrecondition(t, func() { g.SetNextReal(1) })
			requirePrecondition(t, func() { g.RealValue(0, 0, 0) })

			require.NoError(t, g.SetAccessMode(Write))
			requirePrecondition(t, func() { g.NextReal() })
			requirePrecondition(t, func() { _ = g.SetAccessMode(Read) })
			requirePrecondition(t, func() { _ = g.FFTInPlace() })
			requirePrecondition(t, func() { g.CreateComplexGrid() })
			require.NoError(t, g.EndAccess())

			require.NoError(t, g.SetAccessMode(Read))
			requirePrecondition(t, func() { g.SetNextReal(1) })
			requirePrecondition(t, func() { g.NextComplex() })
			requirePrecondition(t, func() { _ = g.MultiplyByScalar(2) })
			require.NoError(t, g.EndAccess())

			require.NoError(t, g.SetAccessMode(RandomAccess))
			requirePrecondition(t, func() { g.NextReal() })
			requirePrecondition(t, func() { _ = g.SetAccessMode(RandomAccess) })
			require.NoError(t, g.EndAccess())

			// Domain preconditions.
			requirePrecondition(t, func() { _ = g.InvFFTInPlace() })
			g.CreateComplexGrid()
			requirePrecondition(t, func() { _ = g.FFTInPlace() })
			requirePrecondition(t, func() { _, _ = g.LogTransf() })
			require.NoError(t, g.SetAccessMode(RandomAccess))
			requirePrecondition(t, func() { g.SetRealValue(0, 0, 0, 1) })
			require.NoError(t, g.EndAccess())

			// Ending a closed session is a no-op.
			require.NoError(t, g.EndAccess())
			assert.Equal(t, None, g.Mode())
		})
	}
}

func TestAdd_ShapeMismatchPanics(t *testing.T) {
	a := NewMemoryGrid(mustDims(t, 2, 2, 2, 2, 2, 2))
	b := NewMemoryGrid(mustDims(t, 2, 2, 2, 4, 2, 2))
	requirePrecondition(t, func() { _ = a.Add(b) })

	c := NewMemoryGrid(mustDims(t, 2, 2, 2, 2, 2, 2))
	c.CreateComplexGrid()
	requirePrecondition(t, func() { _ = a.Multiply(c) })
}

func TestFileGrid_PingPongAndCleanup(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	ws, err := fsutil.NewWorkspace(mfs, "/scratch")
	require.NoError(t, err)
	d := mustDims(t, 3, 3, 3, 4, 3, 3)

	g := NewFileGrid(ws, d)
	names := g.ScratchFiles()
	assert.Equal(t, "/scratch/tmpgrid0", names[0])
	assert.Equal(t, "/scratch/tmpgrid0b", names[1])
	assert.Empty(t, mfs.Files(), "nothing is written before the first save")

	fillRamp(t, g)
	assert.True(t, mfs.Exists(names[0]))
	assert.False(t, mfs.Exists(names[1]))

	require.NoError(t, g.MultiplyByScalar(2))
	assert.True(t, mfs.Exists(names[0]), "previous contents stay until Close")
	assert.True(t, mfs.Exists(names[1]))

	data, err := mfs.ReadFile(names[1])
	require.NoError(t, err)
	assert.Len(t, data, 4*d.RSize())

	require.NoError(t, g.Close())
	assert.Empty(t, mfs.Files())
}

func TestFileGrid_RandomAccessDefersSave(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	ws, _ := fsutil.NewWorkspace(mfs, "/scratch")
	d := mustDims(t, 2, 2, 2, 2, 2, 2)
	g := NewFileGrid(ws, d)
	fillRamp(t, g)
	names := g.ScratchFiles()

	// Unmodified session: nothing new is written.
	require.NoError(t, g.SetAccessMode(RandomAccess))
	_ = g.RealValue(0, 0, 0)
	require.NoError(t, g.EndAccess())
	assert.False(t, mfs.Exists(names[1]))

	// Bulk ops inside the session only touch the resident buffer.
	require.NoError(t, g.SetAccessMode(RandomAccess))
	require.NoError(t, g.MultiplyByScalar(0))
	assert.False(t, mfs.Exists(names[1]))
	assert.Equal(t, float32(0), g.RealValue(1, 1, 1))
	require.NoError(t, g.EndAccess())
	assert.True(t, mfs.Exists(names[1]))

	for _, v := range dump(t, g) {
		assert.Equal(t, float32(0), v)
	}
}

func TestFileGrid_NeverWrittenReadsZero(t *testing.T) {
	ws, _ := fsutil.NewWorkspace(fsutil.NewMemoryFileSystem(), "/scratch")
	g := NewFileGrid(ws, mustDims(t, 2, 1, 1, 2, 1, 1))
	assert.Equal(t, []float32{0, 0, 0, 0}, dump(t, g))
}

// failingFS fails every Create after the first n calls.
type failingFS struct {
	*fsutil.MemoryFileSystem
	creates int
	limit   int
}

var errDiskFull = errors.New("disk full")

func (f *failingFS) Create(name string) (io.WriteCloser, error) {
	f.creates++
	if f.creates > f.limit {
		return nil, &fs.PathError{Op: "create", Path: name, Err: errDiskFull}
	}
	return f.MemoryFileSystem.Create(name)
}

func TestFileGrid_SaveFailureIsReported(t *testing.T) {
	ffs := &failingFS{MemoryFileSystem: fsutil.NewMemoryFileSystem(), limit: 1}
	ws, err := fsutil.NewWorkspace(ffs, "/scratch")
	require.NoError(t, err)
	g := NewFileGrid(ws, mustDims(t, 2, 2, 2, 2, 2, 2))

	fillRamp(t, g)
	before := dump(t, g)
	err = g.FFTInPlace()
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, None, g.Mode())
	assert.Equal(t, Spatial, g.Domain(), "a failed save must not flip the domain")
	assert.Equal(t, before, dump(t, g))

	err = g.SetAccessMode(Write)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, None, g.Mode())
}

func TestStreaming_PastEndPanics(t *testing.T) {
	d := mustDims(t, 2, 1, 1, 2, 1, 1)
	for _, f := range realizations() {
		t.Run(f.name, func(t *testing.T) {
			g := f.make(t, d)
			defer g.Close()
			fillRamp(t, g)

			require.NoError(t, g.SetAccessMode(Read))
			for n := 0; n < d.RSize(); n++ {
				g.NextReal()
			}
			requirePrecondition(t, func() { g.NextReal() })
			require.NoError(t, g.EndAccess())

			require.NoError(t, g.SetAccessMode(Write))
			for n := 0; n < d.RSize(); n++ {
				g.SetNextReal(1)
			}
			requirePrecondition(t, func() { g.SetNextReal(1) })
			require.NoError(t, g.EndAccess())

			require.NoError(t, g.FFTInPlace())
			require.NoError(t, g.SetAccessMode(Read))
			for n := 0; n < d.CSize(); n++ {
				g.NextComplex()
			}
			requirePrecondition(t, func() { g.NextComplex() })
			require.NoError(t, g.EndAccess())
		})
	}
}
