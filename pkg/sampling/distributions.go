package sampling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Binomial returns the number of successes in n trials with success
// probability p.
func (r *RNG) Binomial(n int, p float64) (int, error) {
	if n < 0 || p < 0 || p > 1 || math.IsNaN(p) {
		return 0, fmt.Errorf("binomial n=%d p=%g: %w", n, p, ErrBadParameter)
	}
	switch {
	case n == 0 || p == 0:
		return 0, nil
	case p == 1:
		return n, nil
	}
	d := distuv.Binomial{N: float64(n), P: p, Src: r.src}
	return int(d.Rand()), nil
}

// NegBinomial returns the number of failures before the r-th success, each
// trial succeeding with probability p. It is sampled as a Poisson draw whose
// mean is itself gamma distributed.
func (r *RNG) NegBinomial(successes int, p float64) (int, error) {
	if successes < 0 || p <= 0 || p > 1 || math.IsNaN(p) {
		return 0, fmt.Errorf("negative binomial r=%d p=%g: %w", successes, p, ErrBadParameter)
	}
	if successes == 0 || p == 1 {
		return 0, nil
	}
	lambda := distuv.Gamma{Alpha: float64(successes), Beta: p / (1 - p), Src: r.src}.Rand()
	return r.Poisson(lambda)
}

// Poisson returns a Poisson draw with mean lambda.
func (r *RNG) Poisson(lambda float64) (int, error) {
	if lambda < 0 || math.IsNaN(lambda) {
		return 0, fmt.Errorf("poisson lambda=%g: %w", lambda, ErrBadParameter)
	}
	if lambda == 0 {
		return 0, nil
	}
	return int(distuv.Poisson{Lambda: lambda, Src: r.src}.Rand()), nil
}

// Exponential returns a waiting time for the given rate.
func (r *RNG) Exponential(rate float64) (float64, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 1) {
		return 0, fmt.Errorf("exponential rate=%g: %w", rate, ErrBadParameter)
	}
	return distuv.Exponential{Rate: rate, Src: r.src}.Rand(), nil
}

// Gamma returns the sum of shape independent exponential waiting times with
// the given rate. Shape 0 gives 0; shape 1 is a single exponential draw.
func (r *RNG) Gamma(shape int, rate float64) (float64, error) {
	if shape < 0 {
		return 0, fmt.Errorf("gamma shape=%d: %w", shape, ErrBadParameter)
	}
	switch shape {
	case 0:
		return 0, nil
	case 1:
		return r.Exponential(rate)
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 1) {
		return 0, fmt.Errorf("gamma rate=%g: %w", rate, ErrBadParameter)
	}
	return distuv.Gamma{Alpha: float64(shape), Beta: rate, Src: r.src}.Rand(), nil
}
