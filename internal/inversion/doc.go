// Package inversion implements the frequency-domain Bayesian inversion of
// angle-stack seismic for the log elastic parameters (ln Vp, ln Vs, ln Rho).
//
// An Engine moves through a fixed sequence of phases:
//
//	BuildPriors -> TransformInputs -> PerFrequencyUpdate -> InverseTransform
//	  -> [Simulate]* -> [PosteriorCovariance] -> [FaciesProbability] -> Done
//
// Every wavenumber bin is updated independently. The bins of one z-slice are
// shared out to a bounded pool of workers while the engine goroutine alone
// streams grid data in and out, so each grid keeps a single owner and the
// results do not depend on the worker count.
//
// The linearised forward model for stack s at vertical wavenumber kz is
//
//	d_s(k) = W_s(kz) D(kz) c_s . m(k) + e_s(k)
//
// with W_s the wavelet spectrum, D(kz) = 1 - exp(-2 pi i kz/NZP) the vertical
// difference operator and c_s the Aki-Richards coefficients of the stack.
// Because the complex factor h_s = W_s D is a scalar per stack, dividing
// each observation by h_s leaves a real-valued linear-Gaussian problem with
// noise variance N sigma_s^2 / |h_s|^2, which is what each bin solves.
package inversion
