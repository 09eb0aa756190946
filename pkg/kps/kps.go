// Package kps implements kinetic path sampling: a walker trapped in a basin
// of the transition network escapes in one step by eliminating the basin
// nodes from a local sub-network (graph transformation), sampling the exit
// node on the transformed network and reconstructing the hop counts and the
// escape time of the eliminated detail (reverse randomisation).
package kps

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/kmc"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/sampling"
)

// Driver advances a walker one basin escape per Step. It implements
// kmc.Stepper. A Driver owns its per-iteration state and never mutates the
// full network; independent trajectories need independent drivers.
type Driver struct {
	net      *network.Network
	config   *Config
	rng      *sampling.RNG
	logger   zerolog.Logger
	selector *BasinSelector
	runID    uuid.UUID

	phase      Phase
	state      *BasinState
	trans      *Transformation
	alpha      int
	iterations int
}

// NewDriver validates the configuration against the network.
func NewDriver(net *network.Network, config *Config, rng *sampling.RNG, logger zerolog.Logger) (*Driver, error) {
	if net.NodesB.Cardinality() == 0 {
		return nil, ErrNoStartNode
	}
	if err := net.Validate(); err != nil {
		return nil, fmt.Errorf("validate network: %w", err)
	}
	if overlap := net.NodesA.Intersect(net.NodesB); overlap.Cardinality() > 0 {
		return nil, fmt.Errorf("nodes %v are in both A and B: %w", overlap.ToSlice(), ErrMacrostateOverlap)
	}
	if !config.AdaptiveBasins() && net.NComms == 0 {
		return nil, fmt.Errorf("%d communities, adaptive basins off: %w", net.NComms, ErrNoCommunities)
	}
	if config.NElim() < 1 {
		return nil, fmt.Errorf("nelim=%d: %w", config.NElim(), ErrInvariantViolation)
	}

	runID := uuid.New()
	return &Driver{
		net:      net,
		config:   config,
		rng:      rng,
		logger:   logger.With().Str("run_id", runID.String()).Logger(),
		selector: NewBasinSelector(net, config.AdaptiveBasins(), config.AdaptMinRate(), config.MaxBasinSize()),
		runID:    runID,
		phase:    PhaseNeedBasin,
		alpha:    -1,
	}, nil
}

func (d *Driver) RunID() uuid.UUID { return d.runID }
func (d *Driver) Phase() Phase { return d.phase }
func (d *Driver) Iterations() int { return d.iterations }

// Step performs one outer iteration: basin setup, graph transformation,
// absorbing node sampling and reverse randomisation, then moves the walker
// to the sampled boundary node.
func (d *Driver) Step(ctx context.Context, w *kmc.Walker) (kmc.StepResult, error) {
	began := time.Now()
	res := kmc.StepResult{From: w.NodeID}

	// the previous iteration's sub-networks are released here
	d.phase = PhaseNeedBasin
	d.state, d.trans = nil, nil

	if w.NodeID < 0 {
		start, logProb, err := kmc.SampleStart(d.net, d.rng)
		if err != nil {
			return res, err
		}
		w.NodeID = start
		w.LogProb = logProb
		w.Visit(d.net, start)
		res.From = start
		res.NewPath = true
		d.alpha = -1
	}
	epsilon := w.NodeID

	state, err := d.selector.Select(epsilon)
	if err != nil {
		return res, err
	}
	work, err := ExtractSubnetwork(d.net, state)
	if err != nil {
		return res, err
	}
	orig, err := ExtractSubnetwork(d.net, state)
	if err != nil {
		return res, err
	}
	trans := NewTransformation(work, orig, state, d.config.SelfLoopThreshold())
	if err := trans.Run(state.NElim(d.config.NElim())); err != nil {
		return res, err
	}
	d.state, d.trans = state, trans
	d.phase = PhaseTransformed

	epsSub := state.NodeMap[epsilon]
	if d.config.Debug() {
		if err := d.verify(epsSub); err != nil {
			return res, err
		}
	}

	alphaSub, hops, err := trans.SampleAbsorbing(epsSub, d.rng)
	if err != nil {
		return res, err
	}
	d.alpha = state.SubToFull[alphaSub]
	d.phase = PhaseSampled

	esc, err := trans.ReverseRandomise(hops, d.net, d.rng)
	if err != nil {
		return res, err
	}
	d.phase = PhaseDoneIteration
	d.iterations++

	w.NodeID = d.alpha
	w.Time += esc.Time
	w.Steps += esc.Hops
	w.LogProb += esc.LogProb
	w.Entropy += esc.Entropy
	for _, node := range esc.Visited {
		w.Visit(d.net, node)
	}
	w.Visit(d.net, d.alpha)

	res.To = d.alpha
	res.Dt = esc.Time
	res.Hops = esc.Hops
	res.ReachedA = d.net.Nodes[d.alpha].AorB == network.StateA

	outcome := "basin"
	switch d.net.Nodes[d.alpha].AorB {
	case network.StateA:
		outcome = "A"
		PathsTotal.Inc()
	case network.StateB:
		outcome = "B"
	}
	IterationsTotal.WithLabelValues(outcome).Inc()
	BasinSize.Observe(float64(state.NB))
	EliminatedNodes.Observe(float64(len(trans.Eliminated)))
	EscapeHops.Observe(float64(esc.Hops))
	TransformationSeconds.Observe(time.Since(began).Seconds())

	d.logger.Debug().
		Int("iteration", d.iterations).
		Int("epsilon", epsilon).
		Int("alpha", d.alpha).
		Int("n_basin", state.NB).
		Int("n_boundary", state.NC).
		Int("n_edges", state.NE).
		Int("hops", esc.Hops).
		Float64("dt", esc.Time).
		Msg("Basin escape")
	return res, nil
}

// verify checks that every basin row of the transformed network is
// stochastic and logs the exact escape probabilities of the occupied node.
func (d *Driver) verify(epsSub int) error {
	for j := range d.trans.basin {
		if !d.trans.basin[j] {
			continue
		}
		if sum := d.trans.RowSum(j); math.Abs(sum-1) > network.StochasticTolerance {
			return fmt.Errorf("row %d sums to %.12f after transformation: %w", d.state.SubToFull[j], sum, ErrInvariantViolation)
		}
	}
	probs, err := d.trans.AbsorptionProbabilities(epsSub)
	if err != nil {
		return err
	}
	for j, p := range probs {
		d.logger.Debug().
			Int("boundary", d.state.SubToFull[j]).
			Float64("p_exact", p).
			Msg("Escape probability")
	}
	return nil
}

// Run simulates until the configured number of A<-B paths or iterations is
// reached, taking kps.kmc_steps direct steps after every basin escape.
func (d *Driver) Run(ctx context.Context, w *kmc.Walker, recorder kmc.Recorder) (*kmc.Result, error) {
	var bkl *kmc.BKL
	if d.config.KMCSteps() > 0 {
		bkl = kmc.NewBKL(d.net, d.rng)
	}
	sim := kmc.NewSimulation(d.net, d, bkl, kmc.Options{
		NABPaths:         d.config.NABPaths(),
		MaxIterations:    d.config.MaxIterations(),
		BKLSteps:         d.config.KMCSteps(),
		TrackBins:        !d.config.AdaptiveBasins() && d.net.NBins > 0,
		DumpInterval:     d.config.DumpInterval(),
		EnableProgress:   d.config.EnableProgress(),
		ProgressInterval: d.config.ProgressInterval(),
	}, d.logger)
	if recorder != nil {
		sim.SetRecorder(recorder)
	}

	d.logger.Info().
		Int("nodes", d.net.NumNodes()).
		Int("edges", d.net.NumEdges()).
		Int("nelim", d.config.NElim()).
		Bool("adaptive", d.config.AdaptiveBasins()).
		Msg("Starting kPS simulation")
	return sim.Run(ctx, w)
}
