// Package graph converts protein records into residue neighbor graphs and
// the other learning representations (point clouds, voxel grids).
package graph

import (
	"fmt"
	"sort"

	"proteinshake/pkg/protein"
)

// Edge is a directed edge between two residues, identified by their
// position in the record.
type Edge struct {
	Source int
	Target int
	Weight float64
}

// Graph is the residue graph of one record. Nodes are in record order and
// Edges are sorted by (Source, Target) without self loops.
type Graph struct {
	ID     string
	Nodes  [][]float32
	Edges  []Edge
	Policy Policy
}

func (g *Graph) NumNodes() int {
	return len(g.Nodes)
}

// Neighbors returns the targets of the edges leaving node i.
func (g *Graph) Neighbors(i int) []int {
	start := sort.Search(len(g.Edges), func(x int) bool { return g.Edges[x].Source >= i })
	var out []int
	for x := start; x < len(g.Edges) && g.Edges[x].Source == i; x++ {
		out = append(out, g.Edges[x].Target)
	}
	return out
}

// Edges computes the edge list of coords under p.
func Edges(coords []protein.Point, p Policy) ([]Edge, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	weight := func(i, j int) float64 {
		if p.Weighted {
			return coords[i].Dist(coords[j])
		}
		return 1
	}

	var edges []Edge
	switch p.Mode {
	case ModeRadius:
		pairs := RadiusPairs(coords, p.Eps)
		edges = make([]Edge, 0, 2*len(pairs))
		for _, pair := range pairs {
			i, j := pair[0], pair[1]
			w := weight(i, j)
			edges = append(edges, Edge{Source: i, Target: j, Weight: w}, Edge{Source: j, Target: i, Weight: w})
		}
	case ModeKNN:
		seen := make(map[[2]int]struct{})
		for i, nn := range NearestNeighbors(coords, p.K) {
			for _, j := range nn {
				edges = append(edges, Edge{Source: i, Target: j, Weight: weight(i, j)})
				seen[[2]int{i, j}] = struct{}{}
			}
		}
		if p.Symmetrize {
			n := len(edges)
			for _, e := range edges[:n] {
				if _, ok := seen[[2]int{e.Target, e.Source}]; ok {
					continue
				}
				seen[[2]int{e.Target, e.Source}] = struct{}{}
				edges = append(edges, Edge{Source: e.Target, Target: e.Source, Weight: e.Weight})
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, p.Mode)
	}

	sort.Slice(edges, func(a, b int) bool {
		if edges[a].Source != edges[b].Source {
			return edges[a].Source < edges[b].Source
		}
		return edges[a].Target < edges[b].Target
	})
	return edges, nil
}
