// Package simbox describes the regular 3-D volume every grid is defined
// over: a rotated rectangle in map coordinates with a flat top and constant
// cell size in depth/time.
package simbox

import (
	"fmt"
	"math"
	"strings"
)

// Missing marks an index or value outside the simbox.
const Missing = -99999

// Simbox is the geometric domain of an inversion run.
type Simbox struct {
	X0, Y0   float64 // origin of the rotated rectangle
	LX, LY   float64 // lateral extent
	Top      float64 // flat top surface
	LZ       float64 // thickness
	Rotation float64 // radians, counter-clockwise from the x axis
	DX, DY   float64
	DZ       float64

	NX, NY, NZ int

	cosrot, sinrot float64
}

// New builds a simbox and derives the cell counts by rounding extent/size.
func New(x0, y0, lx, ly, top, lz, rotation, dx, dy, dz float64) (*Simbox, error) {
	for _, v := range []struct {
		name string
		val  float64
	}{{"lx", lx}, {"ly", ly}, {"lz", lz}, {"dx", dx}, {"dy", dy}, {"dz", dz}} {
		if !(v.val > 0) || math.IsInf(v.val, 0) {
			return nil, fmt.Errorf("simbox %s must be positive and finite, got %g", v.name, v.val)
		}
	}
	s := &Simbox{
		X0: x0, Y0: y0, LX: lx, LY: ly, Top: top, LZ: lz, Rotation: rotation,
		DX: dx, DY: dy, DZ: dz,
		NX:     int(0.5 + lx/dx),
		NY:     int(0.5 + ly/dy),
		NZ:     int(0.5 + lz/dz),
		cosrot: math.Cos(rotation),
		sinrot: math.Sin(rotation),
	}
	if s.NX < 1 || s.NY < 1 || s.NZ < 1 {
		return nil, fmt.Errorf("simbox has no cells: %dx%dx%d", s.NX, s.NY, s.NZ)
	}
	return s, nil
}

// Index maps cell indices to a linear index (x fastest).
func (s *Simbox) Index(i, j, k int) int {
	if i < 0 || j < 0 || k < 0 || i >= s.NX || j >= s.NY || k >= s.NZ {
		return Missing
	}
	return i + j*s.NX + k*s.NX*s.NY
}

// Indexes returns the cell containing (x, y, z), or Missing in all three
// components when the point is outside the simbox.
func (s *Simbox) Indexes(x, y, z float64) (i, j, k int) {
	rx := (x-s.X0)*s.cosrot + (y-s.Y0)*s.sinrot
	ry := -(x-s.X0)*s.sinrot + (y-s.Y0)*s.cosrot
	rz := z - s.Top
	if rx < 0 || rx >= s.LX || ry < 0 || ry >= s.LY || rz < 0 || rz >= s.LZ {
		return Missing, Missing, Missing
	}
	i = int(rx / s.DX)
	j = int(ry / s.DY)
	k = int(rz / s.DZ)
	if i >= s.NX || j >= s.NY || k >= s.NZ {
		return Missing, Missing, Missing
	}
	return i, j, k
}

// Coord returns the centre of cell (i, j, k) in map coordinates.
func (s *Simbox) Coord(i, j, k int) (x, y, z float64) {
	rx := (float64(i) + 0.5) * s.DX
	ry := (float64(j) + 0.5) * s.DY
	x = rx*s.cosrot - ry*s.sinrot + s.X0
	y = rx*s.sinrot + ry*s.cosrot + s.Y0
	z = s.Top + (float64(k)+0.5)*s.DZ
	return x, y, z
}

// IsInside reports whether the map position lies within the lateral area.
func (s *Simbox) IsInside(x, y float64) bool {
	rx := (x-s.X0)*s.cosrot + (y-s.Y0)*s.sinrot
	ry := -(x-s.X0)*s.sinrot + (y-s.Y0)*s.cosrot
	return rx >= 0 && rx < s.LX && ry >= 0 && ry < s.LY
}

// PaddedExtents returns FFT-friendly padded sizes for the three axes given
// relative padding fractions.
func (s *Simbox) PaddedExtents(fx, fy, fz float64) (nxp, nyp, nzp int) {
	return PaddedSize(s.NX, fx), PaddedSize(s.NY, fy), PaddedSize(s.NZ, fz)
}

// PaddedSize returns the smallest integer >= n + int(frac*n) whose prime
// factors are all in {2, 3, 5, 7}.
func PaddedSize(n int, frac float64) int {
	if frac < 0 {
		frac = 0
	}
	least := n + int(frac*float64(n))
	if least < 1 {
		least = 1
	}
	for m := least; ; m++ {
		if factorable(m) {
			return m
		}
	}
}

func factorable(n int) bool {
	for _, p := range []int{2, 3, 5, 7} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}

// StormHeader renders the Storm cube header for an nx*ny*nz volume.
func (s *Simbox) StormHeader(cubeType, nx, ny, nz int, ascii bool) string {
	var b strings.Builder
	if ascii {
		b.WriteString("storm_petro_ascii\n")
	} else {
		b.WriteString("storm_petro_binary\n")
	}
	fmt.Fprintf(&b, "0 %d %f\n", cubeType, float64(Missing))
	b.WriteString("FFTGrid\n")
	fmt.Fprintf(&b, "%f %f %f %f 0.0 %f 0.0 0.0\n", s.X0, s.LX, s.Y0, s.LY, s.LZ)
	fmt.Fprintf(&b, "%f %f\n\n", s.LZ, s.Rotation*180/math.Pi)
	fmt.Fprintf(&b, "%d %d %d\n", nx, ny, nz)
	return b.String()
}
