package kps

// BasinLabel classifies a full-network node for the current iteration.
type BasinLabel uint8

const (
	LabelIrrelevant BasinLabel = 0
	LabelBoundary   BasinLabel = 1
	LabelBasin      BasinLabel = 3
)

func (l BasinLabel) String() string {
	switch l {
	case LabelBoundary:
		return "boundary"
	case LabelBasin:
		return "basin"
	default:
		return "irrelevant"
	}
}

// BasinState is rebuilt from scratch at the start of every outer iteration.
type BasinState struct {
	Labels  []BasinLabel
	NB      int // basin nodes
	NC      int // absorbing boundary nodes
	NE      int // live edges leaving basin nodes
	Epsilon int // occupied node, full-network index

	// NodeMap maps full-network indices of labelled nodes onto [0, NB+NC)
	// in ascending order; SubToFull is its inverse.
	NodeMap   map[int]int
	SubToFull []int
}

// Sub returns the sub-network index of a full-network node.
func (s *BasinState) Sub(full int) (int, bool) {
	j, ok := s.NodeMap[full]
	return j, ok
}

// NElim is the number of basin nodes to eliminate under the given cap.
func (s *BasinState) NElim(limit int) int {
	return min(s.NB, limit)
}

// Phase is the position of the driver within one outer iteration.
type Phase int

const (
	PhaseNeedBasin Phase = iota
	PhaseTransformed
	PhaseSampled
	PhaseDoneIteration
)

func (p Phase) String() string {
	switch p {
	case PhaseNeedBasin:
		return "need_basin"
	case PhaseTransformed:
		return "transformed"
	case PhaseSampled:
		return "sampled"
	case PhaseDoneIteration:
		return "done_iteration"
	default:
		return "unknown"
	}
}
