package grid

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"

	"github.com/banshee-data/crava/internal/fsutil"
	"github.com/banshee-data/crava/internal/simbox"
)

// FileGrid keeps its buffer in raw little-endian float32 scratch files
// (RSize values, no header) and loads it only while it is needed.
//
// Outside a RandomAccess session every transform or algebra call loads the
// buffer, runs the same algorithm as MemoryGrid and saves the result. Inside
// RandomAccess the buffer stays loaded and the save is deferred to
// EndAccess. The grid owns two names and alternates between them: each save
// writes the non-live name and then makes it live, so the previous contents
// are never removed before the new file is complete. Close removes both.
type FileGrid struct {
	session
	dims   Dims
	domain Domain
	fs     fsutil.FileSystem

	names   [2]string
	live    int  // index of the name holding current contents
	hasData bool // false until the first save; the grid then reads as zeros

	buf      *buffer
	modified bool

	getCursor int
	setCursor int

	in      fs.File
	reader  *bufio.Reader
	out     io.WriteCloser
	writer  *bufio.Writer
	scratch [4]byte
	err     error // first streaming I/O error, reported by EndAccess
}

// NewFileGrid returns a zeroed spatial grid whose scratch files live in ws.
func NewFileGrid(ws *fsutil.Workspace, d Dims) *FileGrid {
	base := ws.NextName()
	return &FileGrid{
		dims:  d,
		fs:    ws.FS,
		names: [2]string{base, base + "b"},
		live:  1,
	}
}

func (g *FileGrid) Dims() Dims     { return g.dims }
func (g *FileGrid) Domain() Domain { return g.domain }

func (g *FileGrid) inName() string  { return g.names[g.live] }
func (g *FileGrid) outName() string { return g.names[1-g.live] }

func (g *FileGrid) CreateRealGrid() {
	g.requireNone("CreateRealGrid", g.domain)
	g.domain = Spatial
	g.hasData = false
}

func (g *FileGrid) CreateComplexGrid() {
	g.requireNone("CreateComplexGrid", g.domain)
	g.domain = Frequency
	g.hasData = false
}

func (g *FileGrid) SetAccessMode(mode AccessMode) error {
	g.open("SetAccessMode", g.domain, mode)
	g.err = nil
	g.getCursor, g.setCursor = 0, 0
	var err error
	switch mode {
	case Read:
		err = g.openIn()
	case Write:
		err = g.openOut()
	case ReadAndWrite:
		if err = g.openIn(); err == nil {
			err = g.openOut()
		}
	case RandomAccess:
		g.modified = false
		err = g.load()
	}
	if err != nil {
		g.closeStreams()
		g.buf = nil
		g.mode = None
		return err
	}
	return nil
}

func (g *FileGrid) openIn() error {
	if !g.hasData {
		return nil
	}
	f, err := g.fs.Open(g.inName())
	if err != nil {
		return fmt.Errorf("open grid scratch file: %w", err)
	}
	g.in = f
	g.reader = bufio.NewReaderSize(f, 1<<16)
	return nil
}

func (g *FileGrid) openOut() error {
	f, err := g.fs.Create(g.outName())
	if err != nil {
		return fmt.Errorf("create grid scratch file: %w", err)
	}
	g.out = f
	g.writer = bufio.NewWriterSize(f, 1<<16)
	return nil
}

func (g *FileGrid) EndAccess() error {
	mode := g.mode
	if mode == None {
		return nil
	}
	g.mode = None
	var err error
	switch mode {
	case Read:
		err = g.closeIn()
	case ReadAndWrite, Write:
		if mode == ReadAndWrite {
			err = g.closeIn()
		}
		if err == nil && g.err == nil {
			err = g.copyTail()
		}
		if werr := g.closeOut(); werr != nil && err == nil {
			err = werr
		}
		if err == nil && g.err == nil {
			g.swap()
		}
	case RandomAccess:
		if g.modified {
			err = g.save()
		} else {
			g.unload()
		}
	}
	if g.err != nil {
		err = g.err
		g.err = nil
	}
	return err
}

func (g *FileGrid) closeIn() error {
	if g.in == nil {
		return nil
	}
	err := g.in.Close()
	g.in, g.reader = nil, nil
	return err
}

func (g *FileGrid) closeOut() error {
	if g.out == nil {
		return nil
	}
	err := g.writer.Flush()
	if cerr := g.out.Close(); err == nil {
		err = cerr
	}
	g.out, g.writer = nil, nil
	if err != nil {
		return fmt.Errorf("write grid scratch file: %w", err)
	}
	return nil
}

// copyTail appends the live contents past the set cursor to the output, so
// slots a write session did not reach keep their values.
func (g *FileGrid) copyTail() error {
	if !g.hasData {
		return nil
	}
	written := int64(g.setCursor)
	if g.domain == Frequency {
		written *= 2
	}
	f, err := g.fs.Open(g.inName())
	if err != nil {
		return fmt.Errorf("open grid scratch file: %w", err)
	}
	defer f.Close()
	if _, err := io.CopyN(io.Discard, f, 4*written); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read grid scratch file: %w", err)
	}
	if _, err := io.Copy(g.writer, f); err != nil {
		return fmt.Errorf("write grid scratch file: %w", err)
	}
	return nil
}

func (g *FileGrid) closeStreams() {
	g.closeIn()
	g.closeOut()
}

func (g *FileGrid) swap() {
	g.live = 1 - g.live
	g.hasData = true
}

func (g *FileGrid) readFloat() float32 {
	if g.reader == nil || g.err != nil {
		return 0
	}
	if _, err := io.ReadFull(g.reader, g.scratch[:]); err != nil {
		// A short file holds zeros past its end.
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			g.err = fmt.Errorf("read grid scratch file: %w", err)
		}
		g.reader = nil
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(g.scratch[:]))
}

func (g *FileGrid) writeFloat(v float32) {
	if g.err != nil {
		return
	}
	binary.LittleEndian.PutUint32(g.scratch[:], math.Float32bits(v))
	if _, err := g.writer.Write(g.scratch[:]); err != nil {
		g.err = fmt.Errorf("write grid scratch file: %w", err)
	}
}

func (g *FileGrid) requireStream(op string, c capability, domain Domain, cursor, size int) {
	g.require(op, g.domain, c)
	requireDomain(op, g.mode, g.domain, domain)
	if cursor >= size {
		violate(op, g.mode, g.domain, "cursor past end of buffer (%d)", size)
	}
}

func (g *FileGrid) NextReal() float32 {
	g.requireStream("NextReal", capRead, Spatial, g.getCursor, g.dims.RSize())
	g.getCursor++
	return g.readFloat()
}

func (g *FileGrid) SetNextReal(v float32) {
	g.requireStream("SetNextReal", capWrite, Spatial, g.setCursor, g.dims.RSize())
	g.setCursor++
	g.writeFloat(v)
}

func (g *FileGrid) NextComplex() complex64 {
	g.requireStream("NextComplex", capRead, Frequency, g.getCursor, g.dims.CSize())
	g.getCursor++
	re := g.readFloat()
	im := g.readFloat()
	return complex(re, im)
}

func (g *FileGrid) SetNextComplex(v complex64) {
	g.requireStream("SetNextComplex", capWrite, Frequency, g.setCursor, g.dims.CSize())
	g.setCursor++
	g.writeFloat(real(v))
	g.writeFloat(imag(v))
}

func (g *FileGrid) RealValue(i, j, k int) float32 {
	g.require("RealValue", g.domain, capRandom)
	requireDomain("RealValue", g.mode, g.domain, Spatial)
	return g.buf.realValue(i, j, k)
}

func (g *FileGrid) SetRealValue(i, j, k int, v float32) bool {
	g.require("SetRealValue", g.domain, capRandom)
	requireDomain("SetRealValue", g.mode, g.domain, Spatial)
	if !g.buf.setRealValue(i, j, k, v) {
		return false
	}
	g.modified = true
	return true
}

// load materialises the live file into a fresh buffer.
func (g *FileGrid) load() error {
	g.buf = newBuffer(g.dims, g.domain)
	if !g.hasData {
		return nil
	}
	f, err := g.fs.Open(g.inName())
	if err != nil {
		g.buf = nil
		return fmt.Errorf("load grid %s: %w", g.inName(), err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<16)
	var word [4]byte
	for i := range g.buf.data {
		if _, err := io.ReadFull(r, word[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			g.buf = nil
			return fmt.Errorf("load grid %s: %w", g.inName(), err)
		}
		g.buf.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(word[:]))
	}
	return nil
}

// save writes the buffer to the non-live name, frees it and swaps names.
func (g *FileGrid) save() error {
	f, err := g.fs.Create(g.outName())
	if err != nil {
		g.unload()
		return fmt.Errorf("save grid %s: %w", g.outName(), err)
	}
	w := bufio.NewWriterSize(f, 1<<16)
	var word [4]byte
	for _, v := range g.buf.data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		if _, err = w.Write(word[:]); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	g.unload()
	if err != nil {
		return fmt.Errorf("save grid %s: %w", g.outName(), err)
	}
	g.swap()
	return nil
}

func (g *FileGrid) unload() {
	g.buf = nil
}

// mutate runs fn on the loaded buffer under the load/save discipline.
func (g *FileGrid) mutate(op string, fn func(b *buffer) error) error {
	g.require(op, g.domain, capBulk)
	if g.mode == RandomAccess {
		g.modified = true
		err := fn(g.buf)
		g.domain = g.buf.domain
		return err
	}
	if err := g.load(); err != nil {
		return err
	}
	if err := fn(g.buf); err != nil {
		g.unload()
		return err
	}
	domain := g.buf.domain
	if err := g.save(); err != nil {
		return err
	}
	g.domain = domain
	return nil
}

// inspect runs fn on the loaded buffer without writing it back.
func (g *FileGrid) inspect(op string, fn func(b *buffer) error) error {
	g.require(op, g.domain, capBulk)
	if g.mode == RandomAccess {
		return fn(g.buf)
	}
	if err := g.load(); err != nil {
		return err
	}
	defer g.unload()
	return fn(g.buf)
}

func (g *FileGrid) FFTInPlace() error {
	requireDomain("FFTInPlace", g.mode, g.domain, Spatial)
	return g.mutate("FFTInPlace", func(b *buffer) error { b.fft(); return nil })
}

func (g *FileGrid) InvFFTInPlace() error {
	requireDomain("InvFFTInPlace", g.mode, g.domain, Frequency)
	return g.mutate("InvFFTInPlace", func(b *buffer) error { b.invFFT(); return nil })
}

func (g *FileGrid) Add(other Grid) error {
	g.require("Add", g.domain, capBulk)
	requireCompatible("Add", g.mode, &buffer{dims: g.dims, domain: g.domain}, other)
	return g.mutate("Add", func(b *buffer) error { return b.addFrom(other) })
}

func (g *FileGrid) Multiply(other Grid) error {
	g.require("Multiply", g.domain, capBulk)
	requireCompatible("Multiply", g.mode, &buffer{dims: g.dims, domain: g.domain}, other)
	return g.mutate("Multiply", func(b *buffer) error { return b.multiplyFrom(other) })
}

func (g *FileGrid) MultiplyByScalar(s float32) error {
	return g.mutate("MultiplyByScalar", func(b *buffer) error { b.scale(s); return nil })
}

func (g *FileGrid) Square() error {
	return g.mutate("Square", func(b *buffer) error { b.square(); return nil })
}

func (g *FileGrid) ExpTransf() error {
	requireDomain("ExpTransf", g.mode, g.domain, Spatial)
	return g.mutate("ExpTransf", func(b *buffer) error { b.expTransf(); return nil })
}

func (g *FileGrid) LogTransf() (int, error) {
	requireDomain("LogTransf", g.mode, g.domain, Spatial)
	bad := 0
	err := g.mutate("LogTransf", func(b *buffer) error { bad = b.logTransf(); return nil })
	return bad, err
}

func (g *FileGrid) CollapseAndAdd(dst []float32) error {
	requireCollapse(g.mode, &buffer{dims: g.dims, domain: g.domain}, dst)
	return g.inspect("CollapseAndAdd", func(b *buffer) error { b.collapseAndAdd(dst); return nil })
}

func (g *FileGrid) FillInComplexNoise(rng NormalSource) error {
	requireDomain("FillInComplexNoise", g.mode, g.domain, Frequency)
	return g.mutate("FillInComplexNoise", func(b *buffer) error { b.fillNoise(rng); return nil })
}

func (g *FileGrid) WriteFile(name string, box *simbox.Simbox, formats Format, sink Sink) error {
	requireDomain("WriteFile", g.mode, g.domain, Spatial)
	return g.inspect("WriteFile", func(b *buffer) error {
		return writeFormats(b, name, box, formats, sink)
	})
}

func (g *FileGrid) WriteStormFile(name string, box *simbox.Simbox, ascii bool, sink Sink) error {
	f := FormatStorm
	if ascii {
		f = FormatStormASCII
	}
	return g.WriteFile(name, box, f, sink)
}

func (g *FileGrid) WriteSegyFile(name string, box *simbox.Simbox, sink Sink) error {
	return g.WriteFile(name, box, FormatSegy, sink)
}

// Close ends any open session and removes both scratch files.
func (g *FileGrid) Close() error {
	err := g.EndAccess()
	g.closeStreams()
	g.buf = nil
	for _, name := range g.names {
		if rerr := g.fs.Remove(name); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) && err == nil {
			err = fmt.Errorf("remove grid scratch file: %w", rerr)
		}
	}
	return err
}

// ScratchFiles returns the two scratch names owned by the grid.
func (g *FileGrid) ScratchFiles() [2]string { return g.names }
