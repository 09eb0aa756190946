package kps

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// AbsorptionProbabilities solves (I - Q) X = R on the untransformed
// sub-network, where Q holds basin-to-basin and R basin-to-boundary
// probabilities, and returns the row of X for start keyed by boundary
// sub-network index.
func (t *Transformation) AbsorptionProbabilities(start int) (map[int]float64, error) {
	if start < 0 || start >= len(t.basin) || !t.basin[start] {
		return nil, fmt.Errorf("start node %d is not a basin node: %w", start, ErrInvariantViolation)
	}
	orig := t.Orig
	row := make(map[int]int)
	col := make(map[int]int)
	for j, isBasin := range t.basin {
		if isBasin {
			row[j] = len(row)
		} else {
			col[j] = len(col)
		}
	}

	nb, nc := len(row), len(col)
	a := mat.NewDense(nb, nb, nil)
	r := mat.NewDense(nb, nc, nil)
	for i, ri := range row {
		a.Set(ri, ri, 1-orig.Nodes[i].T)
		for _, e := range orig.Nodes[i].Out {
			edge := orig.Edges[e]
			if edge.Dead {
				continue
			}
			if rj, ok := row[edge.To]; ok {
				a.Set(ri, rj, a.At(ri, rj)-edge.T)
			} else {
				cj := col[edge.To]
				r.Set(ri, cj, r.At(ri, cj)+edge.T)
			}
		}
	}

	var x mat.Dense
	if err := x.Solve(a, r); err != nil {
		return nil, fmt.Errorf("absorption probabilities: %w", err)
	}
	out := make(map[int]float64, nc)
	for j, cj := range col {
		out[j] = x.At(row[start], cj)
	}
	return out, nil
}
