package annotate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proteinshake/pkg/protein"
)

func record(id string, chains ...string) *protein.Record {
	n := len(chains)
	rec := &protein.Record{
		ID:           id,
		ResidueIndex: make([]int, n),
		ChainID:      chains,
		Coords:       make([]protein.Point, n),
	}
	seq := make([]byte, n)
	for i := range chains {
		seq[i] = 'A'
		rec.ResidueIndex[i] = i + 1
		rec.Coords[i] = protein.Point{X: 3.8 * float64(i)}
	}
	rec.Sequence = string(seq)
	return rec
}

func TestChain_FirstDropWins(t *testing.T) {
	var calls []string
	tag := func(name string, drop bool) Annotator {
		return Func(func(_ context.Context, rec *protein.Record) (*protein.Record, error) {
			calls = append(calls, name)
			if drop {
				return nil, Drop("%s says no", name)
			}
			protein.SetProtein(rec, name, true)
			return rec, nil
		})
	}

	_, err := Chain(tag("a", false), tag("b", true), tag("c", false)).Annotate(context.Background(), record("1abc", "A"))
	require.ErrorIs(t, err, ErrDrop)
	assert.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	rec, err := Chain(tag("a", false), tag("c", false)).Annotate(context.Background(), record("1abc", "A"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, calls)
	assert.Len(t, rec.Attributes.Protein, 2)
}

func TestChain_Empty(t *testing.T) {
	rec := record("1abc", "A")
	out, err := Chain().Annotate(context.Background(), rec)
	require.NoError(t, err)
	assert.Same(t, rec, out)
}

func TestApply_RejectsBrokenScopes(t *testing.T) {
	bad := Func(func(_ context.Context, rec *protein.Record) (*protein.Record, error) {
		rec.Attributes.Residue = map[string]any{"x": []int{1, 2, 3}}
		return rec, nil
	})
	_, err := Apply(context.Background(), bad, record("1abc", "A", "A"))
	require.ErrorIs(t, err, protein.ErrScopeLength)
	assert.False(t, errors.Is(err, ErrDrop))

	renamed := Func(func(_ context.Context, rec *protein.Record) (*protein.Record, error) {
		out := rec.Clone()
		out.ID = "other"
		return out, nil
	})
	_, err = Apply(context.Background(), renamed, record("1abc", "A"))
	require.Error(t, err)
}

func TestApply_NilRecordIsDrop(t *testing.T) {
	none := Func(func(context.Context, *protein.Record) (*protein.Record, error) { return nil, nil })
	_, err := Apply(context.Background(), none, record("1abc", "A"))
	require.ErrorIs(t, err, ErrDrop)
}
