// Package gridio writes and reads the volume file formats grids are
// persisted in: Storm petro cubes (binary or ASCII) and SEG-Y with IEEE
// float samples.
//
// Writer implements grid.Sink, so grids hand it a view of their logical
// region and never deal with file formats themselves.
package gridio
