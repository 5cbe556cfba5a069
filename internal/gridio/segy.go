package gridio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/crava/internal/grid"
	"github.com/banshee-data/crava/internal/simbox"
)

const (
	segyTextHeaderSize   = 3200
	segyBinaryHeaderSize = 400
	segyTraceHeaderSize  = 240
	segyFormatIEEE       = 5
	segyCoordScalar      = -100 // coordinates stored in centimetres
)

// WriteSegy writes vol as a rev-1 SEG-Y file with one trace per (i, j)
// column, inline index j and crossline index i. Samples are big-endian IEEE
// floats; the sample interval is dz in the unit of the simbox, times 1000.
func WriteSegy(w io.Writer, box *simbox.Simbox, vol grid.Volume) error {
	nx, ny, nz := vol.Extents()
	if nz > math.MaxUint16 {
		return fmt.Errorf("segy traces hold at most %d samples, got %d", math.MaxUint16, nz)
	}
	bw := bufio.NewWriter(w)

	text := make([]byte, segyTextHeaderSize)
	for i := range text {
		text[i] = ' '
	}
	lines := []string{
		"C 1 CRAVA POSTERIOR GRID",
		fmt.Sprintf("C 2 INLINES %d CROSSLINES %d SAMPLES %d", ny, nx, nz),
		fmt.Sprintf("C 3 ORIGIN %.2f %.2f TOP %.2f DZ %.4f", box.X0, box.Y0, box.Top, box.DZ),
		fmt.Sprintf("C 4 ROTATION %.4f DEG", box.Rotation*180/math.Pi),
	}
	for n, line := range lines {
		copy(text[n*80:n*80+80], line)
	}
	if _, err := bw.Write(text); err != nil {
		return err
	}

	bin := make([]byte, segyBinaryHeaderSize)
	be := binary.BigEndian
	be.PutUint16(bin[16:], uint16(math.Round(box.DZ*1000))) // 3217-3218
	be.PutUint16(bin[20:], uint16(nz))                      // 3221-3222
	be.PutUint16(bin[24:], segyFormatIEEE)                  // 3225-3226
	be.PutUint16(bin[300:], 0x0100)                         // 3501-3502 revision 1.0
	be.PutUint16(bin[302:], 1)                              // 3503-3504 fixed trace length
	if _, err := bw.Write(bin); err != nil {
		return err
	}

	header := make([]byte, segyTraceHeaderSize)
	scalar := int16(segyCoordScalar)
	samples := make([]byte, 4*nz)
	seq := 0
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			seq++
			for b := range header {
				header[b] = 0
			}
			x, y, _ := box.Coord(i, j, 0)
			be.PutUint32(header[0:], uint32(seq))                        // 1-4
			be.PutUint32(header[4:], uint32(seq))                        // 5-8
			be.PutUint16(header[70:], uint16(scalar))                    // 71-72
			be.PutUint16(header[114:], uint16(nz))                       // 115-116
			be.PutUint16(header[116:], uint16(math.Round(box.DZ*1000)))  // 117-118
			be.PutUint32(header[180:], uint32(int32(math.Round(x*100)))) // 181-184
			be.PutUint32(header[184:], uint32(int32(math.Round(y*100)))) // 185-188
			be.PutUint32(header[188:], uint32(j))                        // 189-192
			be.PutUint32(header[192:], uint32(i))                        // 193-196
			for k := 0; k < nz; k++ {
				be.PutUint32(samples[4*k:], math.Float32bits(vol.Value(i, j, k)))
			}
			if _, err := bw.Write(header); err != nil {
				return err
			}
			if _, err := bw.Write(samples); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
