package output

import (
	"bufio"
	"fmt"
	"os"

	"github.com/gilchrisn/kinetic-path-sampling/pkg/kmc"
)

// WriteTPStats writes one line per bin: bin id, successes, failures,
// transition path density and committor.
func WriteTPStats(path string, stats *kmc.TPStats) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for i := range stats.Successes {
		fmt.Fprintf(w, "%5d %9d %9d %.10e %.10e\n",
			i, stats.Successes[i], stats.Failures[i], stats.TPDensities[i], stats.Committors[i])
	}
	return w.Flush()
}
