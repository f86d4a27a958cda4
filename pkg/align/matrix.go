package align

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"proteinshake/pkg/logger"
	"proteinshake/pkg/protein"
)

// KindSimilarity is the collection kind of a persisted Matrix.
const KindSimilarity = "similarity"

// Matrix holds the pairwise similarities of a set of structures. TM[i][j]
// is normalized by the length of structure i. Failed pairs are NaN.
type Matrix struct {
	IDs  []string
	TM   [][]float64
	RMSD [][]float64
}

// Failures lists the pairs that could not be aligned.
type Failures []*ToolError

func (f Failures) Err() error {
	var err error
	for _, e := range f {
		err = multierr.Append(err, e)
	}
	return err
}

func newMatrix(ids []string) *Matrix {
	n := len(ids)
	m := &Matrix{IDs: ids, TM: make([][]float64, n), RMSD: make([][]float64, n)}
	for i := range n {
		m.TM[i] = make([]float64, n)
		m.RMSD[i] = make([]float64, n)
		for j := range n {
			if i == j {
				m.TM[i][j] = 1
				continue
			}
			m.TM[i][j] = math.NaN()
			m.RMSD[i][j] = math.NaN()
		}
	}
	return m
}

func (m *Matrix) index(id string) int {
	for i, x := range m.IDs {
		if x == id {
			return i
		}
	}
	return -1
}

// TMScore returns the TM-score of a normalized by the length of a.
func (m *Matrix) TMScore(a, b string) (float64, bool) {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 || math.IsNaN(m.TM[i][j]) {
		return 0, false
	}
	return m.TM[i][j], true
}

func (m *Matrix) RMSDOf(a, b string) (float64, bool) {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 || math.IsNaN(m.RMSD[i][j]) {
		return 0, false
	}
	return m.RMSD[i][j], true
}

type MatrixParams struct {
	Aligner Aligner
	// Parallel is the number of aligner processes. Defaults to NumCPU.
	Parallel int
	// Timeout bounds a single alignment. Zero means no limit.
	Timeout time.Duration
}

type pairJob struct {
	ctx    context.Context
	a, b   string
	result Result
	err    error
}

// ComputeMatrix aligns every unordered pair of paths once. A failing pair is
// recorded in Failures and leaves NaN in the matrix; only cancellation of
// ctx aborts the run.
func ComputeMatrix(ctx context.Context, ids, paths []string, params MatrixParams) (*Matrix, Failures, error) {
	if len(ids) != len(paths) {
		return nil, nil, fmt.Errorf("%d ids for %d paths", len(ids), len(paths))
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	pool := tunny.NewFunc(parallel, func(payload any) any {
		job := payload.(*pairJob)
		defer func() {
			if r := recover(); r != nil {
				job.err = &ToolError{A: job.a, B: job.b, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		job.result, job.err = params.Aligner.Align(job.ctx, job.a, job.b)
		return job
	})
	defer pool.Close()

	m := newMatrix(ids)
	var (
		mu       sync.Mutex
		failures Failures
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range paths {
		for j := i + 1; j < len(paths); j++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				jobCtx := gctx
				if params.Timeout > 0 {
					var cancel context.CancelFunc
					jobCtx, cancel = context.WithTimeout(gctx, params.Timeout)
					defer cancel()
				}

				job := &pairJob{ctx: jobCtx, a: paths[i], b: paths[j]}
				if _, err := pool.ProcessCtx(gctx, job); err != nil {
					return err
				}
				if job.err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					var te *ToolError
					if !errors.As(job.err, &te) {
						te = &ToolError{A: job.a, B: job.b, Err: job.err}
					}
					logger.Debug("[Align] Pair failed", "a", ids[i], "b", ids[j], "err", job.err)
					mu.Lock()
					failures = append(failures, te)
					mu.Unlock()
					return nil
				}
				m.TM[i][j], m.TM[j][i] = job.result.TM1, job.result.TM2
				m.RMSD[i][j], m.RMSD[j][i] = job.result.RMSD, job.result.RMSD
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sort.Slice(failures, func(x, y int) bool {
		if failures[x].A != failures[y].A {
			return failures[x].A < failures[y].A
		}
		return failures[x].B < failures[y].B
	})

	logger.Info("[Align] Computed similarity matrix",
		"structures", len(ids),
		"failed", len(failures),
		"duration", time.Since(start),
	)
	return m, failures, nil
}

func SaveMatrix(path, dataset string, m *Matrix) error {
	return protein.SaveCollection(path, KindSimilarity, dataset, []*Matrix{m})
}

func LoadMatrix(path, dataset string) (*Matrix, error) {
	items, err := protein.LoadCollection[*Matrix](path, KindSimilarity, dataset)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("%w: %d matrices", protein.ErrHeaderMismatch, len(items))
	}
	return items[0], nil
}
