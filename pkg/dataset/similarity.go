package dataset

import (
	"context"
	"errors"
	"fmt"

	"proteinshake/pkg/align"
	"proteinshake/pkg/loader"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/protein"
)

// Similarity returns the pairwise TM-score matrix of all records, computing
// it with the configured aligner on first use. Failures are only reported
// for a fresh computation.
func (c *Cache) Similarity(ctx context.Context, params align.MatrixParams) (*align.Matrix, align.Failures, error) {
	path := c.layout.SimilarityPath(c.def.Name)
	exists, err := fileExists(path)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		m, err := align.LoadMatrix(path, c.def.Name)
		if errors.Is(err, protein.ErrHeaderMismatch) {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrCacheInconsistency, path, err)
		}
		return m, nil, err
	}

	records, err := c.Records(ctx)
	if err != nil {
		return nil, nil, err
	}
	files, err := c.def.files(ctx, Env{Layout: c.layout, Loader: c.loader})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list raw files: %w", err)
	}

	idFunc := c.def.IDFunc
	if idFunc == nil {
		idFunc = loader.BaseID
	}
	byID := make(map[string]string, len(files))
	for _, f := range files {
		byID[idFunc(f)] = f
	}

	ids := make([]string, len(records))
	paths := make([]string, len(records))
	for i, rec := range records {
		p, ok := byID[rec.ID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no raw file for %s", ErrCacheInconsistency, rec.ID)
		}
		ids[i], paths[i] = rec.ID, p
	}

	if params.Parallel == 0 {
		params.Parallel = c.parallel
	}
	m, failures, err := align.ComputeMatrix(ctx, ids, paths, params)
	if err != nil {
		return nil, nil, err
	}
	if len(failures) > 0 {
		logger.Warn("[Dataset] Some pairs could not be aligned", "dataset", c.def.Name, "failed", len(failures))
	}
	if err := align.SaveMatrix(path, c.def.Name, m); err != nil {
		return nil, nil, fmt.Errorf("failed to save similarity matrix: %w", err)
	}
	return m, failures, nil
}
