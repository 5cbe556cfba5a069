package inversion

import (
	"errors"
	"fmt"
)

var (
	// ErrPhase is returned when a step is called out of order.
	ErrPhase = errors.New("inversion step out of order")
	// ErrSingularPrior is returned when the prior parameter covariance is
	// not positive definite.
	ErrSingularPrior = errors.New("prior covariance is singular")
	// ErrIllConditioned is returned when the observation operator or a bin
	// update produces non-finite values.
	ErrIllConditioned = errors.New("observation operator is ill-conditioned")
)

// Phase is the last completed step of an Engine.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseBuildPriors
	PhaseTransformInputs
	PhasePerFrequencyUpdate
	PhaseInverseTransform
	PhaseSimulate
	PhasePosteriorCovariance
	PhaseFaciesProbability
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseCreated:             "CREATED",
	PhaseBuildPriors:         "BUILD_PRIORS",
	PhaseTransformInputs:     "TRANSFORM_INPUTS",
	PhasePerFrequencyUpdate:  "PER_FREQUENCY_UPDATE",
	PhaseInverseTransform:    "INVERSE_TRANSFORM",
	PhaseSimulate:            "SIMULATE",
	PhasePosteriorCovariance: "POSTERIOR_COVARIANCE",
	PhaseFaciesProbability:   "FACIES_PROBABILITY",
	PhaseDone:                "DONE",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// phaseTransitions lists the steps that may follow each completed step.
var phaseTransitions = map[Phase][]Phase{
	PhaseCreated:             {PhaseBuildPriors},
	PhaseBuildPriors:         {PhaseTransformInputs},
	PhaseTransformInputs:     {PhasePerFrequencyUpdate},
	PhasePerFrequencyUpdate:  {PhaseInverseTransform},
	PhaseInverseTransform:    {PhaseSimulate, PhasePosteriorCovariance, PhaseFaciesProbability, PhaseDone},
	PhaseSimulate:            {PhaseSimulate, PhasePosteriorCovariance, PhaseFaciesProbability, PhaseDone},
	PhasePosteriorCovariance: {PhaseFaciesProbability, PhaseDone},
	PhaseFaciesProbability:   {PhaseDone},
}

// CanAdvance reports whether step to may run after step from completed.
func CanAdvance(from, to Phase) bool {
	for _, p := range phaseTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// posterior reports whether the posterior mean is available in p.
func (p Phase) posterior() bool {
	return p >= PhaseInverseTransform
}
