package annotate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"proteinshake/pkg/loader"
	"proteinshake/pkg/parser"
	"proteinshake/pkg/protein"
)

// BindingEntry is one line of a PDBBind index file.
type BindingEntry struct {
	PDB        string
	Resolution float64 // zero for NMR structures
	Year       int
	NegLogAff  float64
	Measure    string // Kd, Ki or IC50
	Value      float64
	Unit       string
	LigandID   string
}

// BindingIndex maps upper-cased PDB ids to their binding data.
type BindingIndex map[string]BindingEntry

// ParsePDBBindIndex reads an INDEX_refined_data file:
//
//	2r58  2.00  2007   2.00  Kd=10mM       // 2r58.pdf (MLY)
func ParsePDBBindIndex(r io.Reader) (BindingIndex, error) {
	index := make(BindingIndex)
	sc := bufio.NewScanner(r)
	lineNumber := 0
	for sc.Scan() {
		lineNumber++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseBindingLine(line)
		if err != nil {
			return nil, fmt.Errorf("pdbbind index line %d: %w", lineNumber, err)
		}
		index[protein.NormalizeID(entry.PDB)] = entry
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pdbbind index: %w", err)
	}
	return index, nil
}

func parseBindingLine(line string) (BindingEntry, error) {
	data, comment, _ := strings.Cut(line, "//")
	fields := strings.Fields(data)
	if len(fields) < 5 {
		return BindingEntry{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	var err error
	e := BindingEntry{PDB: fields[0]}
	if fields[1] != "NMR" {
		if e.Resolution, err = strconv.ParseFloat(fields[1], 64); err != nil {
			return e, fmt.Errorf("invalid resolution %q", fields[1])
		}
	}
	if e.Year, err = strconv.Atoi(fields[2]); err != nil {
		return e, fmt.Errorf("invalid year %q", fields[2])
	}
	if e.NegLogAff, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return e, fmt.Errorf("invalid affinity %q", fields[3])
	}
	if e.Measure, e.Value, e.Unit, err = parseAffinity(fields[4]); err != nil {
		return e, err
	}

	if open := strings.LastIndexByte(comment, '('); open >= 0 {
		if end := strings.IndexByte(comment[open:], ')'); end > 0 {
			e.LigandID = comment[open+1 : open+end]
		}
	}
	return e, nil
}

// parseAffinity splits "Kd=10mM", "Ki~2.5uM" or "IC50<1nM".
func parseAffinity(s string) (string, float64, string, error) {
	i := strings.IndexAny(s, "=<>~")
	if i <= 0 {
		return "", 0, "", fmt.Errorf("invalid affinity measure %q", s)
	}
	measure, rest := s[:i], strings.TrimLeft(s[i:], "=<>~")
	j := strings.IndexFunc(rest, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if j < 0 {
		j = len(rest)
	}
	value, err := strconv.ParseFloat(rest[:j], 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("invalid affinity value %q", s)
	}
	return measure, value, rest[j:], nil
}

// LigandInterface marks the residues (and kept atoms) that appear in the
// PDBBind pocket file <Dir>/<ID>/<ID>_pocket.pdb as "binding_site" and adds
// the affinity data of the index entry.
type LigandInterface struct {
	Dir    string
	Index  BindingIndex
	Loader loader.FileLoader
	// Residues is the table the pocket is parsed with.
	Residues protein.ResidueTable
}

func (l LigandInterface) Annotate(ctx context.Context, rec *protein.Record) (*protein.Record, error) {
	entry, ok := l.Index[protein.NormalizeID(rec.ID)]
	if !ok {
		return nil, Drop("%s is not in the binding index", rec.ID)
	}

	pocketPath := path.Join(l.Dir, rec.ID, rec.ID+"_pocket.pdb")
	pocket, err := parser.NewParser(parser.ParserParams{
		Residues:  l.Residues,
		KeepAtoms: true,
		Loader:    l.Loader,
	}).ParseFile(ctx, pocketPath)
	if err != nil {
		if errors.Is(err, loader.ErrNotFound) || errors.Is(err, parser.ErrNoAlphaCarbons) {
			return nil, Drop("%s has no usable pocket: %v", rec.ID, err)
		}
		return nil, err
	}

	pocketResidues := make(map[int]struct{}, pocket.Len())
	for _, n := range pocket.ResidueIndex {
		pocketResidues[n] = struct{}{}
	}
	site := make([]bool, rec.Len())
	for i, n := range rec.ResidueIndex {
		_, site[i] = pocketResidues[n]
	}
	if err := protein.SetResidue(rec, "binding_site", site); err != nil {
		return nil, err
	}

	if rec.AtomCount > 0 {
		pocketAtoms := make(map[int]struct{})
		numbers, _ := protein.Get[[]int](pocket, protein.ScopeAtom, "residue_number")
		for _, n := range numbers {
			pocketAtoms[n] = struct{}{}
		}
		atomNumbers, ok := protein.Get[[]int](rec, protein.ScopeAtom, "residue_number")
		if !ok {
			return nil, fmt.Errorf("%s keeps atoms without residue numbers", rec.ID)
		}
		atomSite := make([]bool, len(atomNumbers))
		for i, n := range atomNumbers {
			_, atomSite[i] = pocketAtoms[n]
		}
		if err := protein.SetAtom(rec, "binding_site", atomSite); err != nil {
			return nil, err
		}
	}

	protein.SetProtein(rec, "kd", entry.Value)
	protein.SetProtein(rec, "kd_unit", entry.Unit)
	protein.SetProtein(rec, "affinity_measure", entry.Measure)
	protein.SetProtein(rec, "neglog_aff", entry.NegLogAff)
	protein.SetProtein(rec, "resolution", entry.Resolution)
	protein.SetProtein(rec, "year", entry.Year)
	protein.SetProtein(rec, "ligand_id", entry.LigandID)
	return rec, nil
}
