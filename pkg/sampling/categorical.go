package sampling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LogCategorical draws an index with probability proportional to
// exp(logWeights[i]). The weights are normalised with log-sum-exp and the
// index is chosen by comparing one uniform draw to the cumulative sums.
func (r *RNG) LogCategorical(logWeights []float64) (int, error) {
	if len(logWeights) == 0 {
		return -1, fmt.Errorf("empty categorical: %w", ErrBadParameter)
	}
	if len(logWeights) == 1 {
		return 0, nil
	}
	norm := floats.LogSumExp(logWeights)
	if math.IsInf(norm, -1) || math.IsNaN(norm) {
		return -1, fmt.Errorf("categorical with total weight %g: %w", norm, ErrBadParameter)
	}
	probs := make([]float64, len(logWeights))
	for i, w := range logWeights {
		probs[i] = math.Exp(w - norm)
	}
	return pickCumulative(floats.CumSum(probs, probs), r.Uniform()), nil
}

// Categorical draws an index with probability proportional to weights[i].
// Zero weights are never selected.
func (r *RNG) Categorical(weights []float64) (int, error) {
	logWeights := make([]float64, len(weights))
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return -1, fmt.Errorf("weight %d is %g: %w", i, w, ErrBadParameter)
		}
		logWeights[i] = math.Log(w)
	}
	return r.LogCategorical(logWeights)
}

// pickCumulative returns the first index whose cumulative probability
// exceeds u. Rounding in the last entry falls back to the last index with
// positive mass.
func pickCumulative(cum []float64, u float64) int {
	prev := 0.0
	last := -1
	for i, c := range cum {
		if c > prev {
			last = i
			if u < c {
				return i
			}
		}
		prev = c
	}
	return last
}
