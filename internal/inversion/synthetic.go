package inversion

import (
	"errors"
	"fmt"

	"github.com/banshee-data/crava/internal/grid"
)

// SyntheticSeismic returns the forward model of the posterior mean, one
// spatial grid per stack in input order. The spectra are accumulated during
// PerFrequencyUpdate when Options.SyntheticSeismic is set.
func (e *Engine) SyntheticSeismic() ([]grid.Grid, error) {
	if e.err != nil {
		return nil, e.err
	}
	if !e.phase.posterior() {
		return nil, fmt.Errorf("%w: synthetic seismic needs the posterior mean, phase is %s", ErrPhase, e.phase)
	}
	if e.synth == nil {
		return nil, errors.New("synthetic seismic was not requested")
	}
	if !e.synthOut {
		for s, g := range e.synth {
			if err := g.InvFFTInPlace(); err != nil {
				e.err = fmt.Errorf("synthetic seismic %s: %w", e.ops[s].name, err)
				return nil, e.err
			}
		}
		e.synthOut = true
	}
	return e.synth, nil
}
