package grid

import (
	"github.com/banshee-data/crava/internal/simbox"
)

// Format selects the output formats of WriteFile.
type Format uint8

const (
	FormatStorm Format = 1 << iota
	FormatSegy
	FormatStormASCII
)

// Volume is a read-only view of the logical region of a spatial grid.
type Volume interface {
	Extents() (nx, ny, nz int)
	Value(i, j, k int) float32
}

// Sink is implemented by the file-format writers grids hand their data to.
type Sink interface {
	WriteStorm(name string, box *simbox.Simbox, vol Volume, ascii bool) error
	WriteSegy(name string, box *simbox.Simbox, vol Volume) error
}

type bufferVolume struct{ b *buffer }

func (v bufferVolume) Extents() (int, int, int)  { return v.b.dims.NX, v.b.dims.NY, v.b.dims.NZ }
func (v bufferVolume) Value(i, j, k int) float32 { return v.b.realValue(i, j, k) }

func writeFormats(b *buffer, name string, box *simbox.Simbox, formats Format, sink Sink) error {
	vol := bufferVolume{b}
	if formats&FormatStorm != 0 {
		if err := sink.WriteStorm(name, box, vol, false); err != nil {
			return err
		}
	}
	if formats&FormatSegy != 0 {
		if err := sink.WriteSegy(name, box, vol); err != nil {
			return err
		}
	}
	if formats&FormatStormASCII != 0 {
		if err := sink.WriteStorm(name, box, vol, true); err != nil {
			return err
		}
	}
	return nil
}
