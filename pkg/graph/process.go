package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proteinshake/pkg/logger"
	"proteinshake/pkg/protein"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ErrNoGraphs is returned by BuildAll when every record failed.
var ErrNoGraphs = errors.New("no graph could be built")

// Failure is a record that did not convert.
type Failure struct {
	ID  string
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("graph %s: %v", f.ID, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// BuildResult holds the graphs in record order with failed records left out.
type BuildResult struct {
	Graphs   []*Graph
	Failures []Failure
}

func (r *BuildResult) Failed() int {
	return len(r.Failures)
}

// Err aggregates all failures, or returns nil.
func (r *BuildResult) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

// BuildAll converts records in parallel. A failing record is recorded and
// never cancels its siblings. Graphs keep the order of their records
// regardless of scheduling. BuildAll fails when ctx is cancelled or when
// records were given but none converted.
func (b *Builder) BuildAll(ctx context.Context, records []*protein.Record) (*BuildResult, error) {
	start := time.Now()
	graphs := make([]*Graph, len(records))
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(b.parallel)
	for i, rec := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			graphs[i], errs[i] = b.Build(rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &BuildResult{Graphs: make([]*Graph, 0, len(records))}
	edges := 0
	for i, rec := range records {
		if errs[i] != nil {
			res.Failures = append(res.Failures, Failure{ID: rec.ID, Err: errs[i]})
			logger.Debug("[Graph] Dropped record", "id", rec.ID, "err", errs[i])
			continue
		}
		res.Graphs = append(res.Graphs, graphs[i])
		edges += len(graphs[i].Edges)
	}

	if len(records) > 0 && len(res.Graphs) == 0 {
		return res, fmt.Errorf("%w: %w", ErrNoGraphs, res.Err())
	}

	logger.Info("[Graph] Built graphs",
		"count", len(res.Graphs),
		"failed", res.Failed(),
		"policy", b.policy.Key(),
		"edges", edges,
		"duration", time.Since(start),
	)
	return res, nil
}
