package dataset

import (
	"context"
	"errors"
	"io"

	"proteinshake/pkg/graph"
)

// ErrArtifactNotFound is returned by an ArtifactStore without the requested key.
var ErrArtifactNotFound = errors.New("artifact not found")

// Source acquires the raw files of a dataset into rawDir.
type Source interface {
	Download(ctx context.Context, rawDir string) error
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, rawDir string) error

func (f SourceFunc) Download(ctx context.Context, rawDir string) error {
	return f(ctx, rawDir)
}

// LocalSource expects the raw files to be in place already.
var LocalSource Source = SourceFunc(func(context.Context, string) error { return nil })

// ArtifactStore holds published record collections.
type ArtifactStore interface {
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
}

// GraphCache is an optional shared cache in front of the graph files.
type GraphCache interface {
	GetGraphs(ctx context.Context, key string) ([]*graph.Graph, bool, error)
	PutGraphs(ctx context.Context, key string, graphs []*graph.Graph) error
	// Invalidate drops every entry whose key starts with prefix.
	Invalidate(ctx context.Context, prefix string) (int, error)
}
