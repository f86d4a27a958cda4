package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinshake/internal/pdbtest"
	"proteinshake/internal/util"
	"proteinshake/pkg/annotate"
	lio "proteinshake/pkg/loader/io"
	"proteinshake/pkg/parser"
	"proteinshake/pkg/protein"
	"proteinshake/pkg/validate"
)

func newParser() *parser.Parser {
	return parser.NewParser(parser.ParserParams{
		Loader: lio.NewIOFileLoader(lio.NewIOFileLoaderParams{}),
	})
}

func TestRun_ThreeFilesOneMalformed(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		pdbtest.WriteFile(t, dir, "1aaa.pdb", pdbtest.Chain("A", "MET", "LYS", "VAL")),
		pdbtest.WriteRaw(t, dir, "1bbb.pdb", "HEADER    BROKEN\nREMARK nothing here\n"),
		pdbtest.WriteFile(t, dir, "1ccc.pdb", pdbtest.Chain("A", "GLY", "SER")),
	}

	res, err := NewProcessor(NewProcessorParams{Parser: newParser(), Parallel: 2}).Run(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 1, res.Failed())
	assert.Equal(t, 3, res.Total)
	for _, rec := range res.Records {
		assert.NotEmpty(t, rec.Sequence)
	}
	assert.Equal(t, "1aaa", res.Records[0].ID)
	assert.Equal(t, "1ccc", res.Records[1].ID)

	f := res.Failures[0]
	assert.Equal(t, PhaseParse, f.Phase)
	assert.Equal(t, paths[1], f.Path)
	assert.ErrorIs(t, f, parser.ErrNoAlphaCarbons)
}

func TestRun_MixedInputCountsFailures(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	bad := 0
	for i := 0; i < 30; i++ {
		name := fmt.Sprintf("%04d.pdb", i)
		switch {
		case i%7 == 0:
			paths = append(paths, filepath.Join(dir, "missing-"+name))
			bad++
		case i%5 == 0:
			paths = append(paths, pdbtest.WriteRaw(t, dir, name, "ATOM      1  CA  ALA A   1       x\n"))
			bad++
		default:
			paths = append(paths, pdbtest.WriteFile(t, dir, name, pdbtest.Chain("A", "ALA", "CYS")))
		}
	}

	res, err := NewProcessor(NewProcessorParams{Parser: newParser(), Parallel: 4}).Run(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, bad, res.Failed())
	assert.Len(t, res.Records, res.Total-res.Failed())
	assert.Equal(t, bad, res.FailedBy()[PhaseParse])
	assert.Error(t, res.Err())
}

func TestRun_PhasesAreDistinguished(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		pdbtest.WriteFile(t, dir, "keep.pdb", pdbtest.Chain("A", "ALA", "GLY")),
		pdbtest.WriteFile(t, dir, "multi.pdb", append(pdbtest.Chain("A", "ALA"), pdbtest.Atom{ResName: "GLY", Chain: "B", ResNum: 2})),
		pdbtest.WriteFile(t, dir, "nonstd.pdb", pdbtest.Chain("A", "ALA", "MSE")),
		pdbtest.WriteFile(t, dir, "drop.pdb", pdbtest.Chain("A", "ALA", "GLY")),
	}
	dropper := annotate.Func(func(_ context.Context, rec *protein.Record) (*protein.Record, error) {
		if rec.ID == "drop" {
			return nil, annotate.Drop("no annotation")
		}
		protein.SetProtein(rec, "label", 1)
		return rec, nil
	})

	res, err := NewProcessor(NewProcessorParams{
		Parser:    newParser(),
		Validator: validate.NewValidator(validate.ValidatorParams{SingleChainOnly: true}),
		Annotator: dropper,
		Parallel:  3,
	}).Run(context.Background(), paths)
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "keep", res.Records[0].ID)
	by := res.FailedBy()
	assert.Equal(t, 2, by[PhaseValidate])
	assert.Equal(t, 1, by[PhaseAnnotate])

	reasons := map[validate.Reason]bool{}
	for _, f := range res.Failures {
		if f.Phase == PhaseValidate {
			reasons[f.Reason] = true
		}
		if f.Phase == PhaseAnnotate {
			assert.ErrorIs(t, f, annotate.ErrDrop)
		}
	}
	assert.True(t, reasons[validate.ReasonMultipleChains])
	assert.True(t, reasons[validate.ReasonNonStandard])
}

func TestRun_Limit(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, pdbtest.WriteFile(t, dir, fmt.Sprintf("%d.pdb", i), pdbtest.Chain("A", "ALA")))
	}
	res, err := NewProcessor(NewProcessorParams{Parser: newParser(), Limit: 2}).Run(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Records, 2)
}

func TestRun_NoSurvivors(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.pdb"), filepath.Join(dir, "b.pdb")}
	res, err := NewProcessor(NewProcessorParams{Parser: newParser()}).Run(context.Background(), paths)
	require.ErrorIs(t, err, ErrNoRecords)
	assert.Equal(t, 2, res.Failed())

	empty, err := NewProcessor(NewProcessorParams{Parser: newParser()}).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
}

func TestRun_Deterministic(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 25; i++ {
		paths = append(paths, pdbtest.WriteFile(t, dir, fmt.Sprintf("%02d.pdb", i), pdbtest.Chain("A", "ALA", "TRP")))
	}
	p := NewProcessor(NewProcessorParams{Parser: newParser(), Parallel: 8})
	first, err := p.Run(context.Background(), paths)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), paths)
	require.NoError(t, err)

	ids := func(r *Result) []string {
		var out []string
		for _, rec := range r.Records {
			out = append(out, rec.ID)
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second))
	assert.Equal(t, "00", first.Records[0].ID)
	assert.Equal(t, "24", first.Records[24].ID)
}

func TestRun_Progress(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		pdbtest.WriteFile(t, dir, "a.pdb", pdbtest.Chain("A", "ALA")),
		filepath.Join(dir, "missing.pdb"),
	}
	var mu sync.Mutex
	var updates []util.BatchProgress
	_, err := NewProcessor(NewProcessorParams{
		Parser:   newParser(),
		Parallel: 2,
		OnProgress: func(p util.BatchProgress) {
			mu.Lock()
			updates = append(updates, p)
			mu.Unlock()
		},
	}).Run(context.Background(), paths)
	require.NoError(t, err)

	require.Len(t, updates, 2)
	last := updates[len(updates)-1]
	assert.True(t, last.Done)
	assert.Equal(t, int32(100), last.Percentage)
}

type blockingParser struct{}

func (blockingParser) ParseFile(ctx context.Context, _ string) (*protein.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProcessor(NewProcessorParams{Parser: blockingParser{}}).Run(ctx, []string{"a", "b"})
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}
