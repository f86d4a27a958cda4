// Package annotate enriches validated records with dataset specific
// attributes. Annotators never change the residues of a record; they only add
// attributes in the protein, residue or atom scope.
package annotate

import (
	"context"
	"errors"
	"fmt"

	"proteinshake/pkg/protein"
)

// ErrDrop signals that a record has no annotation and must be left out of
// the dataset. Annotators wrap it with the reason.
var ErrDrop = errors.New("record dropped by annotator")

// Annotator adds attributes to a record. It returns the enriched record, an
// error wrapping ErrDrop to drop it, or any other error for a failure.
// Implementations must be safe for concurrent use.
type Annotator interface {
	Annotate(ctx context.Context, rec *protein.Record) (*protein.Record, error)
}

// Func adapts a function to the Annotator interface.
type Func func(ctx context.Context, rec *protein.Record) (*protein.Record, error)

func (f Func) Annotate(ctx context.Context, rec *protein.Record) (*protein.Record, error) {
	return f(ctx, rec)
}

// Identity returns records unchanged.
var Identity Annotator = Func(func(_ context.Context, rec *protein.Record) (*protein.Record, error) {
	return rec, nil
})

type chain []Annotator

// Chain runs annotators in order. The first drop or error stops the chain.
func Chain(annotators ...Annotator) Annotator {
	if len(annotators) == 0 {
		return Identity
	}
	if len(annotators) == 1 {
		return annotators[0]
	}
	return chain(annotators)
}

func (c chain) Annotate(ctx context.Context, rec *protein.Record) (*protein.Record, error) {
	var err error
	for _, a := range c {
		rec, err = a.Annotate(ctx, rec)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, Drop("annotator returned no record")
		}
	}
	return rec, nil
}

// Drop returns an error wrapping ErrDrop.
func Drop(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDrop, fmt.Sprintf(format, args...))
}

// Apply runs a on rec and checks that the result kept its identity and
// scope lengths.
func Apply(ctx context.Context, a Annotator, rec *protein.Record) (*protein.Record, error) {
	out, err := a.Annotate(ctx, rec)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, Drop("annotator returned no record")
	}
	if out.ID != rec.ID {
		return nil, fmt.Errorf("annotator changed record id %q to %q", rec.ID, out.ID)
	}
	if err := out.Consistent(); err != nil {
		return nil, fmt.Errorf("annotator broke record %s: %w", rec.ID, err)
	}
	return out, nil
}
