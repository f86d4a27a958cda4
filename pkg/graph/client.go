package graph

import (
	"fmt"

	"proteinshake/pkg/embed"
	"proteinshake/pkg/protein"
)

// Builder converts records into graphs under a fixed policy and node
// embedding. A Builder should be created using NewBuilder and is safe for
// concurrent use.
type Builder struct {
	policy   Policy
	embed    embed.Func
	parallel int
}

// NewBuilderParams defines the configuration parameters for creating a new
// Builder.
//
// Embed defaults to one-hot encoding over the standard alphabet.
// Parallel controls how many records BuildAll converts at once.
type NewBuilderParams struct {
	Policy   Policy
	Embed    embed.Func
	Parallel int
}

// NewBuilder creates a Builder and validates its policy.
//
// Example:
//
//	b, err := graph.NewBuilder(graph.NewBuilderParams{
//		Policy:   graph.RadiusPolicy(8, true),
//		Parallel: 4,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	res, err := b.BuildAll(ctx, records)
func NewBuilder(params NewBuilderParams) (*Builder, error) {
	if err := params.Policy.Validate(); err != nil {
		return nil, err
	}
	b := &Builder{
		policy:   params.Policy,
		embed:    params.Embed,
		parallel: params.Parallel,
	}
	if b.embed == nil {
		b.embed = embed.OneHot(embed.DefaultAlphabet)
	}
	if b.parallel <= 0 {
		b.parallel = 1
	}
	return b, nil
}

func (b *Builder) Policy() Policy {
	return b.policy
}

// Build converts one record. It does not modify rec.
func (b *Builder) Build(rec *protein.Record) (*Graph, error) {
	if len(rec.Coords) != len(rec.Sequence) {
		return nil, fmt.Errorf("%w: record %s has %d coordinates for %d residues",
			protein.ErrScopeLength, rec.ID, len(rec.Coords), len(rec.Sequence))
	}
	nodes, err := b.embed(rec.Sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s: %w", rec.ID, err)
	}
	if len(nodes) != len(rec.Sequence) {
		return nil, fmt.Errorf("embedding of %s returned %d vectors for %d residues", rec.ID, len(nodes), len(rec.Sequence))
	}
	edges, err := Edges(rec.Coords, b.policy)
	if err != nil {
		return nil, err
	}
	return &Graph{
		ID:     rec.ID,
		Nodes:  nodes,
		Edges:  edges,
		Policy: b.policy,
	}, nil
}
