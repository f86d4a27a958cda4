// Package dataset decides for every dataset instance whether to reuse the
// local record collection, fetch a published one or rebuild it from raw
// files.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"proteinshake/internal/util"
	"proteinshake/pkg/batch"
	"proteinshake/pkg/graph"
	"proteinshake/pkg/loader"
	lio "proteinshake/pkg/loader/io"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/parser"
	"proteinshake/pkg/protein"
	"proteinshake/pkg/validate"
)

// ErrCacheInconsistency is returned when a persisted collection does not
// have the expected header or shape.
var ErrCacheInconsistency = errors.New("cache inconsistency")

// Cache materializes one dataset instance. It is not safe to run two
// Caches on the same Layout at once, in this process or another.
type Cache struct {
	def            Definition
	layout         Layout
	source         Source
	store          ArtifactStore
	graphCache     GraphCache
	loader         loader.FileLoader
	usePrecomputed bool
	parallel       int
	limit          int
	onProgress     func(util.BatchProgress)

	failures []batch.Failure
}

// NewCacheParams configures a Cache.
//
// Source defaults to the definition's source, then LocalSource.
// Store is required when UsePrecomputed is set.
// Loader reads raw files and side tables; defaults to the local filesystem.
type NewCacheParams struct {
	Definition     Definition
	Layout         Layout
	Source         Source
	Store          ArtifactStore
	GraphCache     GraphCache
	Loader         loader.FileLoader
	UsePrecomputed bool
	Parallel       int
	Limit          int
	OnProgress     func(util.BatchProgress)
}

func NewCache(params NewCacheParams) (*Cache, error) {
	if params.Definition.Name == "" {
		return nil, errors.New("dataset definition has no name")
	}
	if err := params.Layout.Validate(); err != nil {
		return nil, err
	}
	if params.UsePrecomputed && params.Store == nil {
		return nil, errors.New("precomputed mode requires an artifact store")
	}

	c := &Cache{
		def:            params.Definition,
		layout:         params.Layout,
		source:         params.Source,
		store:          params.Store,
		graphCache:     params.GraphCache,
		loader:         params.Loader,
		usePrecomputed: params.UsePrecomputed,
		parallel:       params.Parallel,
		limit:          params.Limit,
		onProgress:     params.OnProgress,
	}
	if c.source == nil {
		c.source = c.def.Source
	}
	if c.source == nil {
		c.source = LocalSource
	}
	if c.loader == nil {
		c.loader = lio.NewIOFileLoader(lio.NewIOFileLoaderParams{})
	}
	return c, nil
}

func (c *Cache) Name() string {
	return c.def.Name
}

func (c *Cache) Layout() Layout {
	return c.layout
}

// Records returns the record collection, materializing it on first use:
//
//  1. an existing collection in ArtifactDir is loaded as is;
//  2. in precomputed mode the published collection is fetched;
//  3. otherwise raw files are downloaded unless the completion marker
//     exists, then parsed, validated and annotated.
func (c *Cache) Records(ctx context.Context) ([]*protein.Record, error) {
	path := c.layout.RecordsPath(c.def.Name)

	exists, err := fileExists(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if exists {
		logger.Debug("[Dataset] Loading cached records", "dataset", c.def.Name, "path", path)
		return c.load(path)
	}

	if c.usePrecomputed {
		if err := c.fetch(ctx, path); err != nil {
			return nil, err
		}
		if err := c.layout.WriteMarker(); err != nil {
			return nil, err
		}
		return c.load(path)
	}

	return c.build(ctx, path)
}

// Failures returns the rejected files of the last rebuild by Records. It is
// empty when the collection was loaded or fetched.
func (c *Cache) Failures() []batch.Failure {
	return c.failures
}

func (c *Cache) load(path string) ([]*protein.Record, error) {
	records, err := protein.LoadRecords(path, c.def.Name)
	if err != nil {
		if errors.Is(err, protein.ErrHeaderMismatch) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCacheInconsistency, path, err)
		}
		return nil, err
	}
	for _, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("%w: %s: empty record", ErrCacheInconsistency, path)
		}
		if err := rec.Consistent(); err != nil {
			return nil, fmt.Errorf("%w: %s: record %s: %w", ErrCacheInconsistency, path, rec.ID, err)
		}
	}
	return records, nil
}

func (c *Cache) fetch(ctx context.Context, path string) error {
	key := ArtifactKey(c.def.Name)
	logger.Info("[Dataset] Fetching precomputed records", "dataset", c.def.Name, "key", key)

	rc, err := c.store.Fetch(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *Cache) build(ctx context.Context, path string) ([]*protein.Record, error) {
	start := time.Now()

	done, err := c.layout.HasMarker()
	if err != nil {
		return nil, err
	}
	if !done {
		logger.Info("[Dataset] Downloading raw files", "dataset", c.def.Name, "dir", c.layout.RawDir)
		if err := os.MkdirAll(c.layout.RawDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create raw dir: %w", err)
		}
		if err := c.source.Download(ctx, c.layout.RawDir); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", c.def.Name, err)
		}
		if err := c.layout.WriteMarker(); err != nil {
			return nil, err
		}
	}

	env := Env{Layout: c.layout, Loader: c.loader}
	files, err := c.def.files(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw files: %w", err)
	}
	annotator, err := c.def.annotator(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare annotations: %w", err)
	}

	p := batch.NewProcessor(batch.NewProcessorParams{
		Parser: parser.NewParser(parser.ParserParams{
			Residues:  c.def.Residues,
			KeepAtoms: c.def.KeepAtoms,
			IDFunc:    c.def.IDFunc,
			Loader:    c.loader,
		}),
		Validator: validate.NewValidator(validate.ValidatorParams{
			SingleChainOnly:            c.def.SingleChainOnly,
			RequireContiguousNumbering: c.def.RequireContiguousNumbering,
			Residues:                   c.def.Residues,
		}),
		Annotator:  annotator,
		Parallel:   c.parallel,
		Limit:      c.limit,
		OnProgress: c.onProgress,
	})
	res, err := p.Run(ctx, files)
	if err != nil {
		return nil, err
	}
	c.failures = res.Failures

	if err := protein.SaveRecords(path, c.def.Name, res.Records); err != nil {
		return nil, fmt.Errorf("failed to save records: %w", err)
	}
	// Collections derived from an earlier build of this dataset are stale.
	if err := c.dropDerived(); err != nil {
		return nil, err
	}
	if c.graphCache != nil {
		if n, err := c.graphCache.Invalidate(ctx, c.def.Name+"."); err != nil {
			logger.Warn("[Dataset] Failed to invalidate graph cache", "dataset", c.def.Name, "err", err)
		} else if n > 0 {
			logger.Debug("[Dataset] Invalidated cached graphs", "dataset", c.def.Name, "entries", n)
		}
	}
	logger.Info("[Dataset] Built records",
		"dataset", c.def.Name,
		"records", len(res.Records),
		"failed", res.Failed(),
		"duration", time.Since(start),
	)
	return res.Records, nil
}

// Publish uploads the local record collection to the artifact store under
// ArtifactKey.
func (c *Cache) Publish(ctx context.Context) error {
	if c.store == nil {
		return errors.New("no artifact store configured")
	}
	path := c.layout.RecordsPath(c.def.Name)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if err := c.store.Put(ctx, ArtifactKey(c.def.Name), f); err != nil {
		return fmt.Errorf("failed to publish %s: %w", c.def.Name, err)
	}
	return nil
}

// Graphs returns the graph collection for the builder's policy, building
// and caching it on first use.
func (c *Cache) Graphs(ctx context.Context, b *graph.Builder) ([]*graph.Graph, error) {
	path := c.layout.GraphsPath(c.def.Name, b.Policy())
	key := filepath.Base(path)

	if c.graphCache != nil {
		graphs, ok, err := c.graphCache.GetGraphs(ctx, key)
		if err != nil {
			logger.Warn("[Dataset] Graph cache unavailable", "key", key, "err", err)
		} else if ok {
			return graphs, nil
		}
	}

	exists, err := fileExists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		graphs, err := protein.LoadCollection[*graph.Graph](path, protein.KindGraphs, c.def.Name)
		if err != nil {
			if errors.Is(err, protein.ErrHeaderMismatch) {
				return nil, fmt.Errorf("%w: %s: %w", ErrCacheInconsistency, path, err)
			}
			return nil, err
		}
		c.mirror(ctx, key, graphs)
		return graphs, nil
	}

	records, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}
	res, err := b.BuildAll(ctx, records)
	if err != nil {
		return nil, err
	}
	if res.Failed() > 0 {
		logger.Warn("[Dataset] Some records have no graph",
			"dataset", c.def.Name,
			"policy", b.Policy().Key(),
			"failed", res.Failed(),
			"err", res.Err(),
		)
	}
	graphs := res.Graphs
	if err := protein.SaveCollection(path, protein.KindGraphs, c.def.Name, graphs); err != nil {
		return nil, fmt.Errorf("failed to save graphs: %w", err)
	}
	c.mirror(ctx, key, graphs)
	return graphs, nil
}

// dropDerived removes the graph and similarity collections of this dataset
// from CacheDir.
func (c *Cache) dropDerived() error {
	paths, err := c.layout.DerivedPaths(c.def.Name)
	if err != nil {
		return fmt.Errorf("failed to list derived collections: %w", err)
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
		logger.Debug("[Dataset] Removed stale collection", "path", p)
	}
	return nil
}

func (c *Cache) mirror(ctx context.Context, key string, graphs []*graph.Graph) {
	if c.graphCache == nil {
		return
	}
	if err := c.graphCache.PutGraphs(ctx, key, graphs); err != nil {
		logger.Warn("[Dataset] Failed to mirror graphs", "key", key, "err", err)
	}
}
