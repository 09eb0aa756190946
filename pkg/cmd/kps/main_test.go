package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/network"
	"github.com/gilchrisn/kinetic-path-sampling/pkg/output"
)

// writeTwoTriangles stores two fast triangles joined by a slow bridge,
// B = {1} and A = {6} in file (1-based) ids.
func writeTwoTriangles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		network.StatProbFile: strings.Repeat("-1.791759\n", 6),
		network.ConnsFile:    "1 2\n2 3\n3 1\n4 5\n5 6\n6 4\n3 4\n",
		network.WeightsFile:  "0 0\n0 0\n0 0\n0 0\n0 0\n0 0\n-4.605170 -4.605170\n",
		network.NodesAFile:   "6\n",
		network.NodesBFile:   "1\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	return cmd.Execute()
}

func TestRunCommand(t *testing.T) {
	dir := writeTwoTriangles(t)
	out := t.TempDir()

	err := execute(t, "run", dir, "--n-abpaths", "3", "--output", out, "--write-traj", "--debug", "--log-level", "error")
	require.NoError(t, err)

	dist, err := os.ReadFile(filepath.Join(out, output.TPDistribnsFile))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(dist)), "\n"), 3)

	stats, err := os.ReadFile(filepath.Join(out, output.TPStatsFile))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(stats)), "\n"), 2, "one line per detected community")

	_, err = os.Stat(output.TrajectoryPath(out, 0, 0))
	assert.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, output.SummaryFile))
	require.NoError(t, err)
	var summary output.Summary
	require.NoError(t, yaml.Unmarshal(data, &summary))
	assert.Equal(t, 3, summary.NAB)
	assert.Equal(t, 6, summary.Nodes)
	assert.Greater(t, summary.MFPT, 0.0)
	assert.NotEmpty(t, summary.RunID)
}

func TestRunCommandAdaptive(t *testing.T) {
	dir := writeTwoTriangles(t)
	out := t.TempDir()

	err := execute(t, "run", dir, "--n-abpaths", "2", "--output", out, "--adaptive", "--adapt-min-rate", "0.5", "--max-basin-size", "3", "--kmc-steps", "2", "--log-level", "error")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(out, output.TPStatsFile))
	assert.True(t, os.IsNotExist(err), "no bin statistics with adaptive basins")
	_, err = os.Stat(filepath.Join(out, output.SummaryFile))
	assert.NoError(t, err)
}

func TestRunCommandConfigFile(t *testing.T) {
	dir := writeTwoTriangles(t)
	out := t.TempDir()
	config := filepath.Join(t.TempDir(), "kps.yaml")
	require.NoError(t, os.WriteFile(config, []byte("algorithm:\n  n_abpaths: 2\nkps:\n  nelim: 1\nlogging:\n  level: error\n"), 0644))

	require.NoError(t, execute(t, "run", dir, "--config", config, "--output", out))

	data, err := os.ReadFile(filepath.Join(out, output.SummaryFile))
	require.NoError(t, err)
	var summary output.Summary
	require.NoError(t, yaml.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.NAB)
}

func TestCommunitiesCommand(t *testing.T) {
	dir := writeTwoTriangles(t)
	out := t.TempDir()

	require.NoError(t, execute(t, "communities", dir, "--output", out, "--log-level", "error"))

	data, err := os.ReadFile(filepath.Join(out, network.CommunitiesFile))
	require.NoError(t, err)
	comms := strings.Fields(string(data))
	require.Len(t, comms, 6)
	assert.Equal(t, comms[0], comms[1])
	assert.Equal(t, comms[0], comms[2])
	assert.Equal(t, comms[3], comms[5])
	assert.NotEqual(t, comms[0], comms[3])

	_, err = os.Stat(filepath.Join(out, "communities.mapping"))
	assert.NoError(t, err)
}

func TestRunCommandErrors(t *testing.T) {
	assert.Error(t, execute(t, "run"))
	assert.Error(t, execute(t, "run", t.TempDir(), "--log-level", "error"))
	assert.Error(t, execute(t, "run", writeTwoTriangles(t), "--nelim", "0", "--output", t.TempDir(), "--log-level", "error"))

	// a seventh node with no connections is rejected before any path is sampled
	dir := writeTwoTriangles(t)
	f, err := os.OpenFile(filepath.Join(dir, network.StatProbFile), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("-1.791759\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	out := t.TempDir()
	err = execute(t, "run", dir, "--output", out, "--log-level", "error")
	assert.True(t, errors.Is(err, network.ErrTrapNode), "got %v", err)
	_, statErr := os.Stat(filepath.Join(out, output.TPDistribnsFile))
	assert.True(t, os.IsNotExist(statErr))
}
