// Package task derives learning targets from annotated record collections.
package task

import (
	"errors"
	"fmt"

	"proteinshake/pkg/align"
	"proteinshake/pkg/annotate"
	"proteinshake/pkg/protein"
)

var ErrMissingTarget = errors.New("record has no target")

type Type string

const (
	TypeBinaryClassification Type = "binary-classification"
	TypeRegression           Type = "regression"
	TypeRetrieval            Type = "retrieval"
)

// Level is what a single target describes.
type Level string

const (
	LevelProtein Level = "protein"
	LevelResidue Level = "residue"
	LevelPair    Level = "pair"
)

// Attribute names the targets are read from.
const (
	AttrBindingSite = "binding_site"
	AttrNegLogAff   = "neglog_aff"
	AttrInterface   = "is_interface"
)

func missing(rec *protein.Record, key string) error {
	return fmt.Errorf("%w: %s has no %q", ErrMissingTarget, rec.ID, key)
}

func residueFlags(records []*protein.Record, key string) ([][]bool, error) {
	out := make([][]bool, len(records))
	for i, rec := range records {
		v, ok := protein.Get[[]bool](rec, protein.ScopeResidue, key)
		if !ok {
			return nil, missing(rec, key)
		}
		out[i] = v
	}
	return out, nil
}

// BindingSite classifies each residue as part of a ligand pocket or not.
type BindingSite struct{}

func (BindingSite) Type() Type   { return TypeBinaryClassification }
func (BindingSite) Level() Level { return LevelResidue }

func (BindingSite) Targets(records []*protein.Record) ([][]bool, error) {
	return residueFlags(records, AttrBindingSite)
}

// LigandAffinity regresses the negative log affinity of the bound ligand.
type LigandAffinity struct{}

func (LigandAffinity) Type() Type   { return TypeRegression }
func (LigandAffinity) Level() Level { return LevelProtein }

func (LigandAffinity) Targets(records []*protein.Record) ([]float64, error) {
	out := make([]float64, len(records))
	for i, rec := range records {
		v, ok := protein.Get[float64](rec, protein.ScopeProtein, AttrNegLogAff)
		if !ok {
			return nil, missing(rec, AttrNegLogAff)
		}
		out[i] = v
	}
	return out, nil
}

// ProteinInterface classifies residues of complexes as interface residues.
// ContactMap gives the pairwise chain view of the same data.
type ProteinInterface struct {
	Table *annotate.InterfaceTable
}

func (ProteinInterface) Type() Type   { return TypeBinaryClassification }
func (ProteinInterface) Level() Level { return LevelResidue }

func (ProteinInterface) Targets(records []*protein.Record) ([][]bool, error) {
	return residueFlags(records, AttrInterface)
}

// ContactMap returns a matrix with one row per residue of chainA and one
// column per residue of chainB of rec, true where the two are in contact.
func (p ProteinInterface) ContactMap(rec *protein.Record, chainA, chainB string) ([][]bool, error) {
	if p.Table == nil {
		return nil, fmt.Errorf("%w: no interface table for %s", ErrMissingTarget, rec.ID)
	}
	rows, cols := 0, 0
	for _, c := range rec.ChainID {
		switch c {
		case chainA:
			rows++
		case chainB:
			cols++
		}
	}
	if rows == 0 || cols == 0 || chainA == chainB {
		return nil, fmt.Errorf("%s has no chain pair %s/%s", rec.ID, chainA, chainB)
	}

	out := make([][]bool, rows)
	for i := range out {
		out[i] = make([]bool, cols)
	}
	contacts, _ := p.Table.Contacts(rec.ID, chainA, chainB)
	for _, c := range contacts {
		out[c.I][c.J] = true
	}
	return out, nil
}

// StructureSimilarity regresses the TM-score of a pair of structures.
type StructureSimilarity struct {
	Matrix *align.Matrix
}

func (StructureSimilarity) Type() Type   { return TypeRegression }
func (StructureSimilarity) Level() Level { return LevelPair }

// Pairs returns every unordered pair of the given record indices.
func (StructureSimilarity) Pairs(index []int) [][2]int {
	var out [][2]int
	for a := 0; a < len(index); a++ {
		for b := a + 1; b < len(index); b++ {
			out = append(out, [2]int{index[a], index[b]})
		}
	}
	return out
}

func (s StructureSimilarity) Targets(records []*protein.Record, pairs [][2]int) ([]float64, error) {
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		a, b := records[p[0]].ID, records[p[1]].ID
		tm, ok := s.Matrix.TMScore(a, b)
		if !ok {
			return nil, fmt.Errorf("%w: no similarity for %s/%s", ErrMissingTarget, a, b)
		}
		out[i] = tm
	}
	return out, nil
}

// DefaultMinSimilarity is the TM-score from which a structure counts as a
// hit for a query.
const DefaultMinSimilarity = 0.8

// StructureSearch retrieves the structures at least MinSimilarity similar
// to a query.
type StructureSearch struct {
	Matrix        *align.Matrix
	MinSimilarity float64
}

func (StructureSearch) Type() Type   { return TypeRetrieval }
func (StructureSearch) Level() Level { return LevelProtein }

// Targets maps every query id to its relevant ids in collection order. The
// query itself is not a target.
func (s StructureSearch) Targets(records []*protein.Record) map[string][]string {
	minSim := s.MinSimilarity
	if minSim <= 0 {
		minSim = DefaultMinSimilarity
	}
	out := make(map[string][]string, len(records))
	for _, q := range records {
		hits := []string{}
		for _, c := range records {
			if c.ID == q.ID {
				continue
			}
			if tm, ok := s.Matrix.TMScore(q.ID, c.ID); ok && tm >= minSim {
				hits = append(hits, c.ID)
			}
		}
		out[q.ID] = hits
	}
	return out
}
