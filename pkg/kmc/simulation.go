package kmc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
)

// Recorder receives trajectory output. WriteStep is called for dumped
// states, WritePath once per completed A<-B path.
type Recorder interface {
	WriteStep(w *Walker, commID int, newPath bool) error
	WritePath(w *Walker) error
}

// Options control the outer simulation loop.
type Options struct {
	NABPaths         int
	MaxIterations    int
	BKLSteps         int     // direct steps after every iteration of the main stepper
	TrackBins        bool    // accumulate per-bin transition path statistics
	DumpInterval     float64 // 0 dumps every state
	EnableProgress   bool
	ProgressInterval int
}

// Result summarises a finished simulation.
type Result struct {
	Iterations int
	Stats      *TPStats
	Cancelled  bool
}

// Simulation drives a walker with a Stepper until enough A<-B paths have
// been observed or the iteration cap is reached.
type Simulation struct {
	net      *network.Network
	stepper  Stepper
	bkl      *BKL
	opts     Options
	stats    *TPStats
	recorder Recorder
	logger   zerolog.Logger

	nextDump float64
}

// NewSimulation creates the loop. bkl may be nil when opts.BKLSteps is 0.
func NewSimulation(net *network.Network, stepper Stepper, bkl *BKL, opts Options, logger zerolog.Logger) *Simulation {
	return &Simulation{
		net:     net,
		stepper: stepper,
		bkl:     bkl,
		opts:    opts,
		stats:   NewTPStats(net.NBins),
		logger:  logger,
	}
}

// SetRecorder attaches trajectory output.
func (s *Simulation) SetRecorder(r Recorder) { s.recorder = r }

// Stats returns the transition path statistics collected so far.
func (s *Simulation) Stats() *TPStats { return s.stats }

// Run executes the loop. Cancellation is checked between iterations.
func (s *Simulation) Run(ctx context.Context, w *Walker) (*Result, error) {
	s.logger.Info().
		Int("n_abpaths", s.opts.NABPaths).
		Int("max_iterations", s.opts.MaxIterations).
		Int("bkl_steps", s.opts.BKLSteps).
		Msg("Starting simulation")

	result := &Result{Stats: s.stats}
	for s.stats.NAB < s.opts.NABPaths && result.Iterations < s.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			s.logger.Warn().Err(err).Int("iteration", result.Iterations).Msg("Simulation cancelled")
			result.Cancelled = true
			break
		}

		res, err := s.stepper.Step(ctx, w)
		if err != nil {
			return result, fmt.Errorf("iteration %d: %w", result.Iterations, err)
		}
		result.Iterations++
		if err := s.record(w, res); err != nil {
			return result, err
		}
		if err := s.afterStep(w); err != nil {
			return result, err
		}

		if s.opts.BKLSteps > 0 && s.bkl != nil && w.NodeID >= 0 {
			if err := s.directSteps(ctx, w); err != nil {
				return result, err
			}
		}

		if s.opts.EnableProgress && s.opts.ProgressInterval > 0 && result.Iterations%s.opts.ProgressInterval == 0 {
			s.logger.Info().
				Int("iteration", result.Iterations).
				Int("n_ab", s.stats.NAB).
				Int("n_traj", s.stats.NTraj).
				Float64("time", w.Time).
				Msg("Progress")
		}
	}

	if s.opts.TrackBins {
		s.stats.Finalize()
	}
	s.logger.Info().
		Int("iterations", result.Iterations).
		Int("n_ab", s.stats.NAB).
		Msg("Simulation terminated")
	return result, nil
}

// directSteps takes up to BKLSteps direct hops, stopping at an endpoint.
func (s *Simulation) directSteps(ctx context.Context, w *Walker) error {
	for k := 0; k < s.opts.BKLSteps; k++ {
		res, err := s.bkl.Step(ctx, w)
		if err != nil {
			return fmt.Errorf("direct step %d: %w", k, err)
		}
		if err := s.record(w, res); err != nil {
			return err
		}
		if s.net.Nodes[w.NodeID].AorB != network.StateNone {
			return s.afterStep(w)
		}
	}
	return nil
}

// afterStep handles arrival in A (path complete, walker reset) and returns
// to B (failed path for bin statistics).
func (s *Simulation) afterStep(w *Walker) error {
	switch s.net.Nodes[w.NodeID].AorB {
	case network.StateA:
		s.stats.Update(w, true, s.opts.TrackBins)
		s.logger.Debug().
			Int("path", w.PathNo).
			Float64("time", w.Time).
			Int("steps", w.Steps).
			Float64("log_prob", w.LogProb).
			Msg("Transition path complete")
		if s.recorder != nil {
			if err := s.recorder.WritePath(w); err != nil {
				return fmt.Errorf("write path %d: %w", w.PathNo, err)
			}
		}
		w.PathNo++
		w.Reset()
	case network.StateB:
		s.stats.Update(w, false, s.opts.TrackBins)
		w.Visit(s.net, w.NodeID)
	}
	return nil
}

func (s *Simulation) record(w *Walker, res StepResult) error {
	if s.recorder == nil {
		return nil
	}
	if res.NewPath {
		s.nextDump = s.opts.DumpInterval
	}
	interval := s.opts.DumpInterval
	due := res.NewPath || res.ReachedA || interval <= 0 || w.Time >= s.nextDump
	if interval > 0 {
		for w.Time >= s.nextDump {
			s.nextDump += interval
		}
	}
	if !due {
		return nil
	}
	if err := s.recorder.WriteStep(w, s.net.Nodes[w.NodeID].CommID, res.NewPath); err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}
