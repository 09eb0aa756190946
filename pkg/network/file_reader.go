package network

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Input file names inside a network directory.
const (
	StatProbFile    = "stat_prob.dat"
	ConnsFile       = "ts_conns.dat"
	WeightsFile     = "ts_weights.dat"
	CommunitiesFile = "communities.dat"
	BinsFile        = "bins.dat"
	NodesAFile      = "nodes.A"
	NodesBFile      = "nodes.B"
	InitCondFile    = "initcond.dat"
)

var ErrMalformedInput = errors.New("network: malformed input file")

// FileReader reads a transition network stored as a set of whitespace
// separated text files. Node ids in the files are 1-based.
type FileReader struct {
	Dir string
	Tau float64
}

func NewFileReader(dir string, tau float64) *FileReader {
	return &FileReader{Dir: dir, Tau: tau}
}

// LoadDirectory reads and builds the network stored in dir.
func LoadDirectory(dir string, tau float64) (*Network, error) {
	return NewFileReader(dir, tau).Read()
}

// Read loads every file and assembles the network.
func (fr *FileReader) Read() (*Network, error) {
	logPi, err := fr.readFloatColumn(StatProbFile)
	if err != nil {
		return nil, err
	}
	conns, err := fr.readRows(ConnsFile, 2)
	if err != nil {
		return nil, err
	}
	weights, err := fr.readRows(WeightsFile, 2)
	if err != nil {
		return nil, err
	}
	if len(conns) != len(weights) {
		return nil, fmt.Errorf("%s has %d rows, %s has %d: %w", ConnsFile, len(conns), WeightsFile, len(weights), ErrMalformedInput)
	}

	spec := Spec{LogPi: logPi, Tau: fr.Tau}
	spec.Pairs = make([]RatePair, 0, len(conns))
	for row, c := range conns {
		i, j := int(c[0])-1, int(c[1])-1
		if i == j {
			// degenerate transition state
			continue
		}
		spec.Pairs = append(spec.Pairs, RatePair{I: i, J: j, LogKij: weights[row][0], LogKji: weights[row][1]})
	}

	if spec.Communities, err = fr.readOptionalInts(CommunitiesFile); err != nil {
		return nil, err
	}
	if spec.Bins, err = fr.readOptionalInts(BinsFile); err != nil {
		return nil, err
	}
	if spec.NodesA, err = fr.readNodeIDs(NodesAFile); err != nil {
		return nil, err
	}
	if spec.NodesB, err = fr.readNodeIDs(NodesBFile); err != nil {
		return nil, err
	}

	net, err := Build(spec)
	if err != nil {
		return nil, err
	}

	initProbs, err := fr.readOptionalFloats(InitCondFile)
	if err != nil {
		return nil, err
	}
	if len(initProbs) > 0 {
		b := net.SortedB()
		if len(initProbs) != len(b) {
			return nil, fmt.Errorf("%s has %d values for %d B nodes: %w", InitCondFile, len(initProbs), len(b), ErrMalformedInput)
		}
		for i, id := range b {
			net.InitProbs[id] = initProbs[i]
		}
	}
	return net, nil
}

func (fr *FileReader) path(name string) string {
	return filepath.Join(fr.Dir, name)
}

// readRows reads a file whose non-empty lines have at least width numeric fields.
func (fr *FileReader) readRows(name string, width int) ([][]float64, error) {
	file, err := os.Open(fr.path(name))
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", name, err)
	}
	defer file.Close()

	rows := make([][]float64, 0)
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Fields(text)
		if len(parts) < width {
			return nil, fmt.Errorf("%s:%d: expected %d fields, got %d: %w", name, line, width, len(parts), ErrMalformedInput)
		}
		row := make([]float64, width)
		for k := 0; k < width; k++ {
			v, err := strconv.ParseFloat(parts[k], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %v: %w", name, line, err, ErrMalformedInput)
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func (fr *FileReader) readFloatColumn(name string) ([]float64, error) {
	rows, err := fr.readRows(name, 1)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out, nil
}

func (fr *FileReader) readOptionalFloats(name string) ([]float64, error) {
	if _, err := os.Stat(fr.path(name)); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return fr.readFloatColumn(name)
}

func (fr *FileReader) readOptionalInts(name string) ([]int, error) {
	vals, err := fr.readOptionalFloats(name)
	if err != nil || vals == nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out, nil
}

// readNodeIDs reads 1-based node ids and returns them 0-based.
func (fr *FileReader) readNodeIDs(name string) ([]int, error) {
	ids, err := fr.readOptionalInts(name)
	if err != nil {
		return nil, err
	}
	for i := range ids {
		ids[i]--
	}
	return ids, nil
}

// WriteCommunities writes one community id per line in node order.
func WriteCommunities(path string, net *Network) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, node := range net.Nodes {
		fmt.Fprintf(w, "%d\n", node.CommID)
	}
	return w.Flush()
}
