// Package output writes simulation results: per-path trajectory dumps, the
// transition path distribution, the per-bin statistics table and a run
// summary.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/kmc"
)

const (
	TPDistribnsFile = "tp_distribns.dat"
	TPStatsFile     = "tp_stats.dat"
	SummaryFile     = "run_summary.yaml"
)

// TrajectoryWriter implements kmc.Recorder. Every completed A<-B path is
// appended to tp_distribns.dat; with trajectories enabled each path also
// gets its own walker.<id>.<path>.dat dump of visited states.
type TrajectoryWriter struct {
	dir       string
	writeTraj bool

	traj      *os.File
	trajBuf   *bufio.Writer
	distribns *os.File
	distBuf   *bufio.Writer

	pathTimes []float64
}

// NewTrajectoryWriter creates the output directory and truncates the path
// distribution file.
func NewTrajectoryWriter(dir string, writeTraj bool) (*TrajectoryWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, TPDistribnsFile))
	if err != nil {
		return nil, err
	}
	return &TrajectoryWriter{
		dir:       dir,
		writeTraj: writeTraj,
		distribns: f,
		distBuf:   bufio.NewWriter(f),
	}, nil
}

// TrajectoryPath is the dump file of one walker path.
func TrajectoryPath(dir string, walkerID, pathNo int) string {
	return filepath.Join(dir, fmt.Sprintf("walker.%d.%d.dat", walkerID, pathNo))
}

// WriteStep appends the walker state to the current path's dump, opening a
// new file when a path starts.
func (tw *TrajectoryWriter) WriteStep(w *kmc.Walker, commID int, newPath bool) error {
	if !tw.writeTraj {
		return nil
	}
	if newPath || tw.traj == nil {
		if err := tw.closeTraj(); err != nil {
			return err
		}
		f, err := os.Create(TrajectoryPath(tw.dir, w.ID, w.PathNo))
		if err != nil {
			return err
		}
		tw.traj, tw.trajBuf = f, bufio.NewWriter(f)
	}
	_, err := fmt.Fprintf(tw.trajBuf, "%7d %5d %9d %.10e %.10e %.10e\n",
		w.NodeID+1, commID, w.Steps, w.Time, w.LogProb, w.Entropy)
	return err
}

// WritePath records a completed transition path.
func (tw *TrajectoryWriter) WritePath(w *kmc.Walker) error {
	tw.pathTimes = append(tw.pathTimes, w.Time)
	_, err := fmt.Fprintf(tw.distBuf, "%7d %.10e %9d %.10e %.10e\n",
		w.PathNo, w.Time, w.Steps, w.LogProb, w.Entropy)
	if err != nil {
		return err
	}
	// the next WriteStep belongs to a new path
	return tw.closeTraj()
}

// PathTimes returns the mean and standard deviation of the first passage
// times written so far.
func (tw *TrajectoryWriter) PathTimes() (mean, std float64, n int) {
	n = len(tw.pathTimes)
	if n == 0 {
		return 0, 0, 0
	}
	if n == 1 {
		return tw.pathTimes[0], 0, 1
	}
	mean, std = stat.MeanStdDev(tw.pathTimes, nil)
	return mean, std, n
}

func (tw *TrajectoryWriter) closeTraj() error {
	if tw.traj == nil {
		return nil
	}
	err := tw.trajBuf.Flush()
	if cerr := tw.traj.Close(); err == nil {
		err = cerr
	}
	tw.traj, tw.trajBuf = nil, nil
	return err
}

// Close flushes and closes every open file.
func (tw *TrajectoryWriter) Close() error {
	err := tw.closeTraj()
	if ferr := tw.distBuf.Flush(); err == nil {
		err = ferr
	}
	if cerr := tw.distribns.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ kmc.Recorder = (*TrajectoryWriter)(nil)
