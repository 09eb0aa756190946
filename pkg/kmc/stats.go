package kmc

// TPStats accumulates per-bin transition path counts. A bin visited on a
// path that reaches A is a success; one visited on a path that returns to B
// first is a failure.
type TPStats struct {
	NTraj       int
	NAB         int
	Successes   []int
	Failures    []int
	Committors  []float64
	TPDensities []float64
}

func NewTPStats(numBins int) *TPStats {
	return &TPStats{
		Successes:   make([]int, numBins),
		Failures:    make([]int, numBins),
		Committors:  make([]float64, numBins),
		TPDensities: make([]float64, numBins),
	}
}

// Update counts a finished A<-B or B<-B path and, when bins are tracked,
// folds the walker's visited flags in and clears them.
func (s *TPStats) Update(w *Walker, abPath, trackBins bool) {
	s.NTraj++
	if abPath {
		s.NAB++
	}
	if !trackBins {
		return
	}
	for i, visited := range w.Visited {
		if !visited || i >= len(s.Successes) {
			continue
		}
		if abPath {
			s.Successes[i]++
		} else {
			s.Failures[i]++
		}
	}
	w.ClearVisited()
}

// Finalize computes committors and transition path densities. Bins that
// were never visited keep a committor of zero.
func (s *TPStats) Finalize() {
	for i := range s.Successes {
		if total := s.Successes[i] + s.Failures[i]; total > 0 {
			s.Committors[i] = float64(s.Successes[i]) / float64(total)
		}
		if s.NAB > 0 {
			s.TPDensities[i] = float64(s.Successes[i]) / float64(s.NAB)
		}
	}
}
