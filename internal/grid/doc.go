// Package grid owns the padded 3-D volumes the inversion works on.
//
// A Grid holds either real samples (Spatial domain) or the half-spectrum of
// their 3-D Fourier transform (Frequency domain) in the same float32 slots,
// laid out like an in-place real-to-complex FFT: each x row carries
// NXP/2+1 complex values, i.e. RNXP = 2*(NXP/2+1) float32 slots.
//
// Two realizations share one contract. MemoryGrid keeps the buffer resident.
// FileGrid keeps it in a pair of scratch files and only materialises it for
// the duration of an operation or a RandomAccess session.
//
// Every grid has an access-session state machine (see AccessMode). Calling an
// operation in a mode that does not permit it is a programmer error and
// panics with a *PreconditionError. I/O failures are returned as errors.
package grid
