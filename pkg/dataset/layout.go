package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"proteinshake/pkg/graph"
)

// MarkerFile is written into RawDir once raw acquisition finished.
const MarkerFile = "done.txt"

// Layout is the on-disk location of one dataset instance.
type Layout struct {
	// RawDir receives downloaded raw files and the completion marker.
	RawDir string
	// CacheDir holds derived collections such as graphs and similarity
	// matrices.
	CacheDir string
	// ArtifactDir holds the record collection.
	ArtifactDir string
}

// NewLayout places the three directories below root.
func NewLayout(root string) Layout {
	return Layout{
		RawDir:      filepath.Join(root, "raw"),
		CacheDir:    filepath.Join(root, "cache"),
		ArtifactDir: filepath.Join(root, "artifacts"),
	}
}

func (l Layout) Validate() error {
	if l.RawDir == "" || l.CacheDir == "" || l.ArtifactDir == "" {
		return fmt.Errorf("incomplete layout %+v", l)
	}
	return nil
}

func (l Layout) MarkerPath() string {
	return filepath.Join(l.RawDir, MarkerFile)
}

// RecordsPath is where the record collection of dataset name lives.
func (l Layout) RecordsPath(name string) string {
	return filepath.Join(l.ArtifactDir, RecordsFileName(name))
}

func (l Layout) GraphsPath(name string, p graph.Policy) string {
	return filepath.Join(l.CacheDir, fmt.Sprintf("%s.%s.graphs.gob.gz", name, p.Key()))
}

func (l Layout) SimilarityPath(name string) string {
	return filepath.Join(l.CacheDir, name+".similarity.gob.gz")
}

// DerivedPaths lists the existing graph and similarity collections of
// dataset name in CacheDir.
func (l Layout) DerivedPaths(name string) ([]string, error) {
	entries, err := os.ReadDir(l.CacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	similarity := filepath.Base(l.SimilarityPath(name))
	var paths []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() {
			continue
		}
		if n == similarity || (strings.HasPrefix(n, name+".") && strings.HasSuffix(n, ".graphs.gob.gz")) {
			paths = append(paths, filepath.Join(l.CacheDir, n))
		}
	}
	return paths, nil
}

func (l Layout) HasMarker() (bool, error) {
	return fileExists(l.MarkerPath())
}

func (l Layout) WriteMarker() error {
	if err := os.MkdirAll(l.RawDir, 0o755); err != nil {
		return fmt.Errorf("failed to create raw dir: %w", err)
	}
	if err := os.WriteFile(l.MarkerPath(), []byte("done\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write completion marker: %w", err)
	}
	return nil
}

func RecordsFileName(name string) string {
	return name + ".records.gob.gz"
}

// ArtifactKey is the object key of the precomputed collection of name.
func ArtifactKey(name string) string {
	return "artifacts/" + RecordsFileName(name)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
