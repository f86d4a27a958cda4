package protein

import (
	"bufio"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	CollectionFormat  = "proteinshake"
	CollectionVersion = 1

	KindRecords = "records"
	KindGraphs  = "graphs"
)

// ErrHeaderMismatch is returned when a persisted collection was written for
// another dataset, kind or format version.
var ErrHeaderMismatch = errors.New("collection header mismatch")

// Header is written in front of every persisted collection.
type Header struct {
	Format  string
	Version int
	Kind    string
	Dataset string
	Count   int
}

func init() {
	gob.Register(Point{})
	gob.Register([]Point{})
	gob.Register([][]float64{})
	gob.Register(map[string]any{})
}

// WriteCollection encodes items behind a header as a gzip compressed gob stream.
func WriteCollection[T any](w io.Writer, kind, dataset string, items []T) error {
	zw := gzip.NewWriter(w)
	enc := gob.NewEncoder(zw)

	h := Header{
		Format:  CollectionFormat,
		Version: CollectionVersion,
		Kind:    kind,
		Dataset: dataset,
		Count:   len(items),
	}
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for i := range items {
		if err := enc.Encode(&items[i]); err != nil {
			return fmt.Errorf("failed to encode item %d: %w", i, err)
		}
	}
	return zw.Close()
}

// ReadCollection decodes a stream written by WriteCollection and checks that
// it holds kind for dataset.
func ReadCollection[T any](r io.Reader, kind, dataset string) ([]T, error) {
	zr, err := gzip.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeaderMismatch, err)
	}
	defer zr.Close()
	dec := gob.NewDecoder(zr)

	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeaderMismatch, err)
	}
	switch {
	case h.Format != CollectionFormat:
		return nil, fmt.Errorf("%w: format %q", ErrHeaderMismatch, h.Format)
	case h.Version != CollectionVersion:
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrHeaderMismatch, h.Version, CollectionVersion)
	case h.Kind != kind:
		return nil, fmt.Errorf("%w: kind %q, expected %q", ErrHeaderMismatch, h.Kind, kind)
	case h.Dataset != dataset:
		return nil, fmt.Errorf("%w: dataset %q, expected %q", ErrHeaderMismatch, h.Dataset, dataset)
	case h.Count < 0:
		return nil, fmt.Errorf("%w: negative count", ErrHeaderMismatch)
	}

	items := make([]T, h.Count)
	for i := range items {
		if err := dec.Decode(&items[i]); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrHeaderMismatch, i, err)
		}
	}
	return items, nil
}

// SaveCollection writes the collection to path via a temporary file so a
// crashed writer never leaves a truncated collection behind.
func SaveCollection[T any](path, kind, dataset string, items []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCollection(tmp, kind, dataset, items); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move collection into place: %w", err)
	}
	return nil
}

func LoadCollection[T any](path, kind, dataset string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	defer f.Close()
	return ReadCollection[T](f, kind, dataset)
}

func SaveRecords(path, dataset string, records []*Record) error {
	return SaveCollection(path, KindRecords, dataset, records)
}

func LoadRecords(path, dataset string) ([]*Record, error) {
	return LoadCollection[*Record](path, KindRecords, dataset)
}
