// Package batch runs parse, validate and annotate over many raw files with
// bounded parallelism. One bad file never aborts the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"proteinshake/internal/util"
	"proteinshake/pkg/annotate"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/protein"
	"proteinshake/pkg/validate"

	"golang.org/x/sync/errgroup"
)

// RecordParser turns one raw file into a record.
type RecordParser interface {
	ParseFile(ctx context.Context, path string) (*protein.Record, error)
}

// RecordValidator applies the inclusion policy.
type RecordValidator interface {
	Validate(rec *protein.Record) (bool, validate.Reason)
}

type Processor struct {
	parser     RecordParser
	validator  RecordValidator
	annotator  annotate.Annotator
	parallel   int
	limit      int
	onProgress func(util.BatchProgress)
}

// NewProcessorParams configures a Processor.
//
// Parallel is the number of files processed at once (n_jobs).
// Limit truncates the input file list when positive.
// OnProgress is called after every finished file; calls never overlap.
type NewProcessorParams struct {
	Parser     RecordParser
	Validator  RecordValidator
	Annotator  annotate.Annotator
	Parallel   int
	Limit      int
	OnProgress func(util.BatchProgress)
}

func NewProcessor(params NewProcessorParams) *Processor {
	p := &Processor{
		parser:     params.Parser,
		validator:  params.Validator,
		annotator:  params.Annotator,
		parallel:   params.Parallel,
		limit:      params.Limit,
		onProgress: params.OnProgress,
	}
	if p.validator == nil {
		p.validator = validate.NewValidator(validate.ValidatorParams{})
	}
	if p.annotator == nil {
		p.annotator = annotate.Identity
	}
	if p.parallel <= 0 {
		p.parallel = 1
	}
	return p
}

type counters struct {
	total      int64
	parsing    atomic.Int64
	annotating atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
}

func (c *counters) snapshot() util.BatchCounts {
	return util.BatchCounts{
		Total:      c.total,
		Parsing:    c.parsing.Load(),
		Annotating: c.annotating.Load(),
		Completed:  c.completed.Load(),
		Failed:     c.failed.Load(),
	}
}

// Run processes paths and returns the records that passed every phase, in
// input order, along with the failures. It returns ErrNoRecords when paths
// is non-empty but nothing survived, and the context error when ctx is
// cancelled before the batch finished.
func (p *Processor) Run(ctx context.Context, paths []string) (*Result, error) {
	if p.parser == nil {
		return nil, errors.New("batch processor has no parser")
	}
	if p.limit > 0 && len(paths) > p.limit {
		paths = paths[:p.limit]
	}

	start := time.Now()
	outcomes := make([]Outcome, len(paths))
	c := &counters{total: int64(len(paths))}
	var progressMu sync.Mutex
	report := func() {
		if p.onProgress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		p.onProgress(util.BuildBatchProgress(c.snapshot()))
	}

	logger.Info("[Batch] Processing files", "count", len(paths), "parallel", p.parallel)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			o := p.process(gCtx, c, path)
			if o.Failure != nil {
				if err := gCtx.Err(); err != nil {
					return err
				}
				c.failed.Add(1)
				logger.Debug("[Batch] Dropped file", "path", path, "phase", o.Failure.Phase, "err", o.Failure.Error())
			} else {
				c.completed.Add(1)
			}
			outcomes[i] = o
			report()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := partition(outcomes)
	logger.Info("[Batch] Finished",
		"total", res.Total,
		"records", len(res.Records),
		"failed", res.Failed(),
		"duration", time.Since(start),
	)
	if res.Total > 0 && len(res.Records) == 0 {
		return res, fmt.Errorf("%w: %d files failed: %w", ErrNoRecords, res.Failed(), res.Err())
	}
	return res, nil
}

func (p *Processor) process(ctx context.Context, c *counters, path string) Outcome {
	c.parsing.Add(1)
	rec, err := p.parser.ParseFile(ctx, path)
	c.parsing.Add(-1)
	if err != nil {
		return Outcome{Path: path, Failure: &Failure{Path: path, Phase: PhaseParse, Err: err}}
	}

	if ok, reason := p.validator.Validate(rec); !ok {
		return Outcome{Path: path, Failure: &Failure{Path: path, Phase: PhaseValidate, Reason: reason}}
	}

	c.annotating.Add(1)
	rec, err = annotate.Apply(ctx, p.annotator, rec)
	c.annotating.Add(-1)
	if err != nil {
		return Outcome{Path: path, Failure: &Failure{Path: path, Phase: PhaseAnnotate, Err: err}}
	}
	return Outcome{Path: path, Record: rec}
}
