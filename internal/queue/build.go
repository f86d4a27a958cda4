package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"proteinshake/internal/config"
	"proteinshake/internal/util"
	"proteinshake/pkg/align"
	"proteinshake/pkg/batch"
	"proteinshake/pkg/dataset"
	"proteinshake/pkg/graph"
	"proteinshake/pkg/logger"
	"proteinshake/pkg/store"
	storepgx "proteinshake/pkg/store/pgx"
)

// ErrPermanent marks build failures a retry cannot fix.
var ErrPermanent = errors.New("permanent build failure")

func permanent(err error) bool {
	for _, target := range []error{
		ErrPermanent,
		dataset.ErrUnknownKind,
		dataset.ErrCacheInconsistency,
		batch.ErrNoRecords,
		align.ErrToolMissing,
		graph.ErrInvalidPolicy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsPermanent reports whether a failed build should go straight to the
// dead-letter queue.
func IsPermanent(err error) bool {
	return permanent(err)
}

type Leaser interface {
	WithDatasetLease(ctx context.Context, key string, opts storepgx.LeaseOptions, fn func(ctx context.Context) error) error
}

// Runner executes dataset builds. Every dependency except Root is optional.
type Runner struct {
	root       string
	parallel   int
	artifacts  dataset.ArtifactStore
	sources    func(name string) dataset.Source
	graphCache dataset.GraphCache
	index      store.RecordIndex
	builds     store.BuildStore
	leases     Leaser
	publisher  Publisher
	aligner    align.Aligner
}

type NewRunnerParams struct {
	Root       string
	Parallel   int
	Artifacts  dataset.ArtifactStore
	Sources    func(name string) dataset.Source
	GraphCache dataset.GraphCache
	Index      store.RecordIndex
	Builds     store.BuildStore
	Leases     Leaser
	Publisher  Publisher
	// Aligner defaults to TMalign from PATH.
	Aligner align.Aligner
}

func NewRunner(params NewRunnerParams) *Runner {
	return &Runner{
		root:       params.Root,
		parallel:   params.Parallel,
		artifacts:  params.Artifacts,
		sources:    params.Sources,
		graphCache: params.GraphCache,
		index:      params.Index,
		builds:     params.Builds,
		leases:     params.Leases,
		publisher:  params.Publisher,
		aligner:    params.Aligner,
	}
}

// Report summarizes a finished build.
type Report struct {
	Dataset       string         `json:"dataset"`
	Records       int            `json:"records"`
	Failed        int            `json:"failed"`
	Graphs        map[string]int `json:"graphs,omitempty"`
	Similarity    bool           `json:"similarity,omitempty"`
	AlignFailures int            `json:"align_failures,omitempty"`
	Published     bool           `json:"published,omitempty"`
}

// Run builds msg.Build and records the outcome in the build store.
func (r *Runner) Run(ctx context.Context, msg BuildMsg) (*Report, error) {
	start := time.Now()
	name := msg.Build.DatasetName()
	logger.Info("[Queue] Starting build", "build_id", msg.BuildID, "dataset", name, "kind", msg.Build.Kind)

	var report *Report
	run := func(ctx context.Context) error {
		var err error
		report, err = r.build(ctx, msg)
		return err
	}

	var err error
	if r.leases != nil {
		err = r.leases.WithDatasetLease(ctx, name, storepgx.LeaseOptions{Wait: true}, run)
	} else {
		err = run(ctx)
	}

	r.finish(ctx, msg.BuildID, report, err)
	if err != nil {
		return nil, err
	}
	logger.Info("[Queue] Build finished",
		"build_id", msg.BuildID,
		"dataset", name,
		"records", report.Records,
		"failed", report.Failed,
		"duration", time.Since(start),
	)
	return report, nil
}

func (r *Runner) build(ctx context.Context, msg BuildMsg) (*Report, error) {
	b := msg.Build
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	def, err := dataset.Lookup(b.Kind)
	if err != nil {
		return nil, err
	}
	def.Name = b.DatasetName()

	var source dataset.Source
	if r.sources != nil {
		source = r.sources(def.Name)
	}
	c, err := dataset.NewCache(dataset.NewCacheParams{
		Definition:     def,
		Layout:         dataset.NewLayout(filepath.Join(r.root, def.Name)),
		Source:         source,
		Store:          r.artifacts,
		GraphCache:     r.graphCache,
		UsePrecomputed: b.UsePrecomputed,
		Parallel:       r.parallel,
		Limit:          b.Limit,
		OnProgress:     r.progress(ctx, msg.BuildID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}

	records, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Dataset: def.Name,
		Records: len(records),
		Failed:  len(c.Failures()),
		Graphs:  map[string]int{},
	}

	for _, p := range b.Graphs {
		builder, err := graph.NewBuilder(graph.NewBuilderParams{Policy: p, Parallel: r.parallel})
		if err != nil {
			return nil, err
		}
		graphs, err := c.Graphs(ctx, builder)
		if err != nil {
			return nil, err
		}
		report.Graphs[p.Key()] = len(graphs)
	}

	if b.Similarity {
		aligner := r.aligner
		if aligner == nil {
			tm, err := align.NewTMAlign(align.NewTMAlignParams{})
			if err != nil {
				return nil, err
			}
			aligner = tm
		}
		_, failures, err := c.Similarity(ctx, align.MatrixParams{Aligner: aligner, Parallel: r.parallel})
		if err != nil {
			return nil, err
		}
		report.AlignFailures = len(failures)
		report.Similarity = true
	}

	if b.Publish {
		if r.artifacts == nil {
			return nil, fmt.Errorf("%w: publish requested without artifact store", ErrPermanent)
		}
		if err := c.Publish(ctx); err != nil {
			return nil, err
		}
		report.Published = true
	}

	if b.Index && r.index != nil {
		if err := r.index.SaveRecords(ctx, def.Name, records); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// progress forwards batch progress to the progress topic and the build
// store whenever the percentage moves.
func (r *Runner) progress(ctx context.Context, buildID string) func(util.BatchProgress) {
	if r.publisher == nil && r.builds == nil {
		return nil
	}
	last := int32(-1)
	return func(p util.BatchProgress) {
		if p.Percentage == last && !p.Done {
			return
		}
		last = p.Percentage
		if r.publisher != nil {
			data, _ := json.Marshal(p)
			if err := PublishTopic(r.publisher, ProgressTopic(buildID), data); err != nil {
				logger.Warn("[Queue] Failed to publish progress", "build_id", buildID, "err", err)
			}
		}
		if r.builds != nil {
			if err := r.builds.UpdateBuildProgress(ctx, buildID, p); err != nil {
				logger.Warn("[Queue] Failed to store progress", "build_id", buildID, "err", err)
			}
		}
	}
}

func (r *Runner) finish(ctx context.Context, buildID string, report *Report, buildErr error) {
	if r.builds == nil {
		return
	}
	status, records, failed, message := store.BuildDone, 0, 0, ""
	if report != nil {
		records, failed = report.Records, report.Failed
	}
	if buildErr != nil {
		status, message = store.BuildFailed, buildErr.Error()
		if permanent(buildErr) {
			status = store.BuildRejected
		}
	}
	if err := r.builds.FinishBuild(ctx, buildID, status, records, failed, message); err != nil {
		logger.Warn("[Queue] Failed to store build result", "build_id", buildID, "err", err)
	}
}
