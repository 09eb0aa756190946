package output

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/kmc"
)

// Summary is the YAML record of one run.
type Summary struct {
	RunID      string    `yaml:"run_id"`
	Started    time.Time `yaml:"started"`
	Finished   time.Time `yaml:"finished"`
	Nodes      int       `yaml:"nodes"`
	Edges      int       `yaml:"edges"`
	Iterations int       `yaml:"iterations"`
	NTraj      int       `yaml:"n_traj"`
	NAB        int       `yaml:"n_ab"`
	Cancelled  bool      `yaml:"cancelled"`

	MFPT    float64 `yaml:"mfpt"`
	MFPTStd float64 `yaml:"mfpt_std"`

	Settings map[string]interface{} `yaml:"settings,omitempty"`
}

// NewSummary fills the counters from a finished simulation.
func NewSummary(runID string, started time.Time, nodes, edges int, result *kmc.Result) *Summary {
	s := &Summary{
		RunID:    runID,
		Started:  started,
		Finished: time.Now(),
		Nodes:    nodes,
		Edges:    edges,
	}
	if result != nil {
		s.Iterations = result.Iterations
		s.Cancelled = result.Cancelled
		if result.Stats != nil {
			s.NTraj = result.Stats.NTraj
			s.NAB = result.Stats.NAB
		}
	}
	return s
}

// WriteSummary marshals the summary to path.
func WriteSummary(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
