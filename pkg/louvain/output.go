package louvain

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// OutputWriter interface for flexible output generation
type OutputWriter interface {
	WriteMapping(result *Result, path string) error
	WriteHierarchy(result *Result, path string) error
	WriteAll(result *Result, outputDir string, prefix string) error
}

// FileWriter implements OutputWriter for file-based output
type FileWriter struct{}

// NewFileWriter creates a new file-based output writer
func NewFileWriter() OutputWriter {
	return &FileWriter{}
}

// WriteAll writes all output files
func (fw *FileWriter) WriteAll(result *Result, outputDir string, prefix string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	mappingPath := filepath.Join(outputDir, fmt.Sprintf("%s.mapping", prefix))
	if err := fw.WriteMapping(result, mappingPath); err != nil {
		return fmt.Errorf("failed to write mapping: %w", err)
	}

	hierarchyPath := filepath.Join(outputDir, fmt.Sprintf("%s.hierarchy", prefix))
	if err := fw.WriteHierarchy(result, hierarchyPath); err != nil {
		return fmt.Errorf("failed to write hierarchy: %w", err)
	}
	return nil
}

// WriteMapping writes each community followed by its member count and nodes
func (fw *FileWriter) WriteMapping(result *Result, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	members := make([][]int, result.NumCommunities)
	for node, c := range result.FinalCommunities {
		members[c] = append(members[c], node)
	}

	w := bufio.NewWriter(file)
	for c, nodes := range members {
		fmt.Fprintf(w, "c0_l%d_%d\n", result.NumLevels, c)
		fmt.Fprintf(w, "%d\n", len(nodes))
		for _, node := range nodes {
			fmt.Fprintf(w, "%d\n", node)
		}
	}
	return w.Flush()
}

// WriteHierarchy writes, for every level above the first, each community and
// the communities of the level below that it contains
func (fw *FileWriter) WriteHierarchy(result *Result, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for level := 1; level < len(result.Levels); level++ {
		info := result.Levels[level]
		subComms := make([][]int, info.NumCommunities)
		// nodes of this level are the communities of the previous one
		for sub, c := range info.Membership {
			subComms[c] = append(subComms[c], sub)
		}
		for c, subs := range subComms {
			fmt.Fprintf(w, "c0_l%d_%d\n", level+1, c)
			fmt.Fprintf(w, "%d\n", len(subs))
			for _, sub := range subs {
				fmt.Fprintf(w, "%d\n", sub)
			}
		}
	}
	return w.Flush()
}
