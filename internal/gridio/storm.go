package gridio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/simbox"
)

// Cube types written in the Storm header.
const (
	StormParameterCube = 1
)

// WriteStorm writes vol with a Storm header taken from box. Binary cubes hold
// big-endian float32 samples with x fastest; ASCII cubes hold one sample per
// line.
func WriteStorm(w io.Writer, box *simbox.Simbox, vol grid.Volume, ascii bool) error {
	nx, ny, nz := vol.Extents()
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(box.StormHeader(StormParameterCube, nx, ny, nz, ascii)); err != nil {
		return err
	}
	var word [4]byte
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				v := vol.Value(i, j, k)
				var err error
				if ascii {
					_, err = fmt.Fprintf(bw, "%g\n", v)
				} else {
					binary.BigEndian.PutUint32(word[:], math.Float32bits(v))
					_, err = bw.Write(word[:])
				}
				if err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// StormCube is a Storm petro cube read back from disk.
type StormCube struct {
	ASCII      bool
	CubeType   int
	Missing    float32
	X0, LX     float64
	Y0, LY     float64
	LZ         float64
	Rotation   float64 // degrees
	NX, NY, NZ int
	Values     []float32 // x fastest
}

// Value returns the sample at (i, j, k).
func (c *StormCube) Value(i, j, k int) float32 {
	return c.Values[i+c.NX*(j+c.NY*k)]
}

// Extents returns the cube dimensions.
func (c *StormCube) Extents() (int, int, int) { return c.NX, c.NY, c.NZ }

// ReadStorm parses a Storm cube written by WriteStorm.
func ReadStorm(r io.Reader) (*StormCube, error) {
	br := bufio.NewReader(r)
	next := func() ([]string, error) {
		for {
			line, err := br.ReadString('\n')
			fields := strings.Fields(line)
			if len(fields) > 0 {
				return fields, nil
			}
			if err != nil {
				return nil, fmt.Errorf("storm header truncated: %w", err)
			}
		}
	}

	c := &StormCube{}
	fields, err := next()
	if err != nil {
		return nil, err
	}
	switch fields[0] {
	case "storm_petro_binary":
	case "storm_petro_ascii":
		c.ASCII = true
	default:
		return nil, fmt.Errorf("not a storm petro cube: %q", fields[0])
	}

	if fields, err = next(); err != nil {
		return nil, err
	}
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed storm type line %q", strings.Join(fields, " "))
	}
	if c.CubeType, err = strconv.Atoi(fields[1]); err != nil {
		return nil, fmt.Errorf("storm cube type: %w", err)
	}
	missing, err := strconv.ParseFloat(fields[2], 32)
	if err != nil {
		return nil, fmt.Errorf("storm missing code: %w", err)
	}
	c.Missing = float32(missing)

	if _, err = next(); err != nil { // variable name
		return nil, err
	}

	floats := func(min int) ([]float64, error) {
		fields, err := next()
		if err != nil {
			return nil, err
		}
		if len(fields) < min {
			return nil, fmt.Errorf("storm header line %q has %d fields, need %d", strings.Join(fields, " "), len(fields), min)
		}
		out := make([]float64, len(fields))
		for i, f := range fields {
			if out[i], err = strconv.ParseFloat(f, 64); err != nil {
				return nil, fmt.Errorf("storm header value %q: %w", f, err)
			}
		}
		return out, nil
	}

	area, err := floats(4)
	if err != nil {
		return nil, err
	}
	c.X0, c.LX, c.Y0, c.LY = area[0], area[1], area[2], area[3]
	zrot, err := floats(2)
	if err != nil {
		return nil, err
	}
	c.LZ, c.Rotation = zrot[0], zrot[1]
	counts, err := floats(3)
	if err != nil {
		return nil, err
	}
	c.NX, c.NY, c.NZ = int(counts[0]), int(counts[1]), int(counts[2])
	if c.NX < 1 || c.NY < 1 || c.NZ < 1 {
		return nil, fmt.Errorf("storm cube has no cells: %dx%dx%d", c.NX, c.NY, c.NZ)
	}

	c.Values = make([]float32, c.NX*c.NY*c.NZ)
	if c.ASCII {
		for i := range c.Values {
			var v float32
			if _, err := fmt.Fscan(br, &v); err != nil {
				return nil, fmt.Errorf("storm sample %d: %w", i, err)
			}
			c.Values[i] = v
		}
		return c, nil
	}
	var word [4]byte
	for i := range c.Values {
		if _, err := io.ReadFull(br, word[:]); err != nil {
			return nil, fmt.Errorf("storm sample %d: %w", i, err)
		}
		c.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(word[:]))
	}
	return c, nil
}

// FillGrid copies vol into the logical region of g, which must be spatial
// with matching extents. Samples equal to the missing code become zero.
func FillGrid(g grid.Grid, vol grid.Volume) error {
	d := g.Dims()
	nx, ny, nz := vol.Extents()
	if nx != d.NX || ny != d.NY || nz != d.NZ {
		return fmt.Errorf("volume is %dx%dx%d, grid is %dx%dx%d", nx, ny, nz, d.NX, d.NY, d.NZ)
	}
	g.CreateRealGrid()
	if err := g.SetAccessMode(grid.RandomAccess); err != nil {
		return err
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				v := vol.Value(i, j, k)
				if v == grid.Missing {
					v = 0
				}
				g.SetRealValue(i, j, k, v)
			}
		}
	}
	return g.EndAccess()
}
