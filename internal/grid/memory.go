package grid

import (
	"github.com/banshee-data/crava/internal/simbox"
)

// MemoryGrid keeps the whole padded buffer resident.
type MemoryGrid struct {
	session
	buf       *buffer
	getCursor int
	setCursor int
}

// NewMemoryGrid returns a zeroed spatial grid.
func NewMemoryGrid(d Dims) *MemoryGrid {
	return &MemoryGrid{buf: newBuffer(d, Spatial)}
}

func (g *MemoryGrid) Dims() Dims     { return g.buf.dims }
func (g *MemoryGrid) Domain() Domain { return g.buf.domain }

func (g *MemoryGrid) CreateRealGrid() {
	g.requireNone("CreateRealGrid", g.buf.domain)
	g.buf = newBuffer(g.buf.dims, Spatial)
}

func (g *MemoryGrid) CreateComplexGrid() {
	g.requireNone("CreateComplexGrid", g.buf.domain)
	g.buf = newBuffer(g.buf.dims, Frequency)
}

func (g *MemoryGrid) SetAccessMode(mode AccessMode) error {
	g.open("SetAccessMode", g.buf.domain, mode)
	g.getCursor, g.setCursor = 0, 0
	return nil
}

func (g *MemoryGrid) EndAccess() error {
	g.mode = None
	g.getCursor, g.setCursor = 0, 0
	return nil
}

func (g *MemoryGrid) NextReal() float32 {
	g.requireStream("NextReal", capRead, Spatial, g.getCursor, g.buf.dims.RSize())
	v := g.buf.data[g.getCursor]
	g.getCursor++
	return v
}

func (g *MemoryGrid) SetNextReal(v float32) {
	g.requireStream("SetNextReal", capWrite, Spatial, g.setCursor, g.buf.dims.RSize())
	g.buf.data[g.setCursor] = v
	g.setCursor++
}

func (g *MemoryGrid) NextComplex() complex64 {
	g.requireStream("NextComplex", capRead, Frequency, g.getCursor, g.buf.dims.CSize())
	c := complex(g.buf.data[2*g.getCursor], g.buf.data[2*g.getCursor+1])
	g.getCursor++
	return c
}

func (g *MemoryGrid) SetNextComplex(v complex64) {
	g.requireStream("SetNextComplex", capWrite, Frequency, g.setCursor, g.buf.dims.CSize())
	g.buf.data[2*g.setCursor] = real(v)
	g.buf.data[2*g.setCursor+1] = imag(v)
	g.setCursor++
}

func (g *MemoryGrid) requireStream(op string, c capability, domain Domain, cursor, size int) {
	g.require(op, g.buf.domain, c)
	requireDomain(op, g.mode, g.buf.domain, domain)
	if cursor >= size {
		violate(op, g.mode, g.buf.domain, "cursor past end of buffer (%d)", size)
	}
}

func (g *MemoryGrid) RealValue(i, j, k int) float32 {
	g.require("RealValue", g.buf.domain, capRandom)
	requireDomain("RealValue", g.mode, g.buf.domain, Spatial)
	return g.buf.realValue(i, j, k)
}

func (g *MemoryGrid) SetRealValue(i, j, k int, v float32) bool {
	g.require("SetRealValue", g.buf.domain, capRandom)
	requireDomain("SetRealValue", g.mode, g.buf.domain, Spatial)
	return g.buf.setRealValue(i, j, k, v)
}

func (g *MemoryGrid) FFTInPlace() error {
	g.require("FFTInPlace", g.buf.domain, capBulk)
	requireDomain("FFTInPlace", g.mode, g.buf.domain, Spatial)
	g.buf.fft()
	return nil
}

func (g *MemoryGrid) InvFFTInPlace() error {
	g.require("InvFFTInPlace", g.buf.domain, capBulk)
	requireDomain("InvFFTInPlace", g.mode, g.buf.domain, Frequency)
	g.buf.invFFT()
	return nil
}

func (g *MemoryGrid) Add(other Grid) error {
	g.require("Add", g.buf.domain, capBulk)
	requireCompatible("Add", g.mode, g.buf, other)
	return g.buf.addFrom(other)
}

func (g *MemoryGrid) Multiply(other Grid) error {
	g.require("Multiply", g.buf.domain, capBulk)
	requireCompatible("Multiply", g.mode, g.buf, other)
	return g.buf.multiplyFrom(other)
}

func (g *MemoryGrid) MultiplyByScalar(s float32) error {
	g.require("MultiplyByScalar", g.buf.domain, capBulk)
	g.buf.scale(s)
	return nil
}

func (g *MemoryGrid) Square() error {
	g.require("Square", g.buf.domain, capBulk)
	g.buf.square()
	return nil
}

func (g *MemoryGrid) ExpTransf() error {
	g.require("ExpTransf", g.buf.domain, capBulk)
	requireDomain("ExpTransf", g.mode, g.buf.domain, Spatial)
	g.buf.expTransf()
	return nil
}

func (g *MemoryGrid) LogTransf() (int, error) {
	g.require("LogTransf", g.buf.domain, capBulk)
	requireDomain("LogTransf", g.mode, g.buf.domain, Spatial)
	return g.buf.logTransf(), nil
}

func (g *MemoryGrid) CollapseAndAdd(dst []float32) error {
	g.require("CollapseAndAdd", g.buf.domain, capBulk)
	requireCollapse(g.mode, g.buf, dst)
	g.buf.collapseAndAdd(dst)
	return nil
}

func (g *MemoryGrid) FillInComplexNoise(rng NormalSource) error {
	g.require("FillInComplexNoise", g.buf.domain, capBulk)
	requireDomain("FillInComplexNoise", g.mode, g.buf.domain, Frequency)
	g.buf.fillNoise(rng)
	return nil
}

func (g *MemoryGrid) WriteFile(name string, box *simbox.Simbox, formats Format, sink Sink) error {
	g.require("WriteFile", g.buf.domain, capBulk)
	requireDomain("WriteFile", g.mode, g.buf.domain, Spatial)
	return writeFormats(g.buf, name, box, formats, sink)
}

func (g *MemoryGrid) WriteStormFile(name string, box *simbox.Simbox, ascii bool, sink Sink) error {
	f := FormatStorm
	if ascii {
		f = FormatStormASCII
	}
	return g.WriteFile(name, box, f, sink)
}

func (g *MemoryGrid) WriteSegyFile(name string, box *simbox.Simbox, sink Sink) error {
	return g.WriteFile(name, box, FormatSegy, sink)
}

// Close drops the buffer. The grid must not be used afterwards.
func (g *MemoryGrid) Close() error {
	g.mode = None
	g.buf.data = nil
	return nil
}

func requireDomain(op string, mode AccessMode, have, want Domain) {
	if have != want {
		violate(op, mode, have, "requires %s domain", want)
	}
}

func requireCompatible(op string, mode AccessMode, b *buffer, other Grid) {
	if !b.dims.SamePadding(other.Dims()) {
		violate(op, mode, b.domain, "padded shapes differ")
	}
	if other.Domain() != b.domain {
		violate(op, mode, b.domain, "operand is in %s domain", other.Domain())
	}
}

func requireCollapse(mode AccessMode, b *buffer, dst []float32) {
	requireDomain("CollapseAndAdd", mode, b.domain, Spatial)
	if len(dst) < b.dims.NX*b.dims.NY {
		violate("CollapseAndAdd", mode, b.domain, "target holds %d values, need %d", len(dst), b.dims.NX*b.dims.NY)
	}
}
