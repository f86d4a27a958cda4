// Package parser turns fixed-column PDB files into protein records. Only ATOM
// lines are read; HETATM ligands and waters are left to annotators.
package parser

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"

	"proteinshake/pkg/loader"
	"proteinshake/pkg/protein"
)

const alphaCarbon = "CA"

// IDFunc derives a record id from the path of its raw file.
type IDFunc func(path string) string

type ParserParams struct {
	// Residues maps residue names to codes. Defaults to protein.StandardResidues.
	Residues protein.ResidueTable
	// KeepAtoms additionally stores the atom table of the first model in the
	// atom scope (atom_name, residue_number, coords).
	KeepAtoms bool
	// IDFunc defaults to loader.BaseID.
	IDFunc IDFunc
	Loader loader.FileLoader
}

type Parser struct {
	residues  protein.ResidueTable
	keepAtoms bool
	idFunc    IDFunc
	loader    loader.FileLoader
}

func NewParser(params ParserParams) *Parser {
	p := &Parser{
		residues:  params.Residues,
		keepAtoms: params.KeepAtoms,
		idFunc:    params.IDFunc,
		loader:    params.Loader,
	}
	if p.residues == nil {
		p.residues = protein.StandardResidues
	}
	if p.idFunc == nil {
		p.idFunc = loader.BaseID
	}
	return p
}

// Residues returns the table the parser maps residue names with.
func (p *Parser) Residues() protein.ResidueTable {
	return p.residues
}

// ParseFile reads path through the configured loader. Every failure is a
// *ParseError.
func (p *Parser) ParseFile(ctx context.Context, path string) (*protein.Record, error) {
	if p.loader == nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("no file loader configured")}
	}
	data, err := loader.File{Path: path, Loader: p.loader}.Read(ctx)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return p.Parse(path, data)
}

// Parse builds a record from the content of a PDB file, plain or gzip.
func (p *Parser) Parse(path string, data []byte) (*protein.Record, error) {
	data, err := loader.Decompress(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var (
		residues   []residue
		seen       = make(map[int]struct{})
		atoms      []atom
		atomsDone  bool
		lineNumber int
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 128), 1<<20)
	for sc.Scan() {
		lineNumber++
		l := line(sc.Bytes())

		switch l.cols(1, 6) {
		case "ENDMDL":
			atomsDone = true
			continue
		case "ATOM":
		default:
			continue
		}

		name := l.cols(13, 16)
		isCA := name == alphaCarbon
		if !isCA && (!p.keepAtoms || atomsDone) {
			continue
		}

		a, err := l.parseAtom(name)
		if err != nil {
			return nil, &ParseError{Path: path, Line: lineNumber, Err: err}
		}

		if p.keepAtoms && !atomsDone && (a.altLoc == ' ' || a.altLoc == 'A' || a.altLoc == 0) {
			atoms = append(atoms, a)
		}

		if !isCA {
			continue
		}
		if _, dup := seen[a.resNum]; dup {
			continue
		}
		seen[a.resNum] = struct{}{}
		residues = append(residues, residue{
			code:   p.residues.Code(a.resName),
			number: a.resNum,
			chain:  a.chain,
			coord:  a.coord,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if len(residues) == 0 {
		return nil, &ParseError{Path: path, Err: ErrNoAlphaCarbons}
	}

	sort.SliceStable(residues, func(i, j int) bool {
		return residues[i].number < residues[j].number
	})

	n := len(residues)
	seq := make([]byte, n)
	rec := &protein.Record{
		ID:           p.idFunc(path),
		ResidueIndex: make([]int, n),
		ChainID:      make([]string, n),
		Coords:       make([]protein.Point, n),
	}
	for i, r := range residues {
		seq[i] = r.code
		rec.ResidueIndex[i] = r.number
		rec.ChainID[i] = r.chain
		rec.Coords[i] = r.coord
	}
	rec.Sequence = string(seq)

	if p.keepAtoms {
		if err := setAtoms(rec, atoms); err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
	}
	return rec, nil
}

func setAtoms(rec *protein.Record, atoms []atom) error {
	rec.AtomCount = len(atoms)
	names := make([]string, len(atoms))
	numbers := make([]int, len(atoms))
	coords := make([]protein.Point, len(atoms))
	for i, a := range atoms {
		names[i] = a.name
		numbers[i] = a.resNum
		coords[i] = a.coord
	}
	if err := protein.SetAtom(rec, "atom_name", names); err != nil {
		return err
	}
	if err := protein.SetAtom(rec, "residue_number", numbers); err != nil {
		return err
	}
	return protein.SetAtom(rec, "coords", coords)
}

type residue struct {
	code   byte
	number int
	chain  string
	coord  protein.Point
}

type atom struct {
	name    string
	resName string
	resNum  int
	chain   string
	altLoc  byte
	coord   protein.Point
}

type line []byte

func (l line) parseAtom(name string) (atom, error) {
	var err error
	a := atom{
		name:    name,
		resName: l.cols(18, 20),
		chain:   l.cols(22, 22),
		altLoc:  l.at(17),
	}
	if a.resNum, err = l.atoi(23, 26); err != nil {
		return a, fmt.Errorf("invalid residue number: %w", err)
	}
	if a.coord.X, err = l.atof(31, 38); err != nil {
		return a, fmt.Errorf("invalid x coordinate: %w", err)
	}
	if a.coord.Y, err = l.atof(39, 46); err != nil {
		return a, fmt.Errorf("invalid y coordinate: %w", err)
	}
	if a.coord.Z, err = l.atof(47, 54); err != nil {
		return a, fmt.Errorf("invalid z coordinate: %w", err)
	}
	return a, nil
}

func (l line) atoi(start, end int) (int, error) {
	return strconv.Atoi(l.cols(start, end))
}

func (l line) atof(start, end int) (float64, error) {
	return strconv.ParseFloat(l.cols(start, end), 64)
}

// cols returns the trimmed 1-based inclusive column range.
func (l line) cols(start, end int) string {
	rs, re := start-1, end
	if rs >= len(l) || rs < 0 {
		return ""
	}
	if re > len(l) {
		re = len(l)
	}
	if re < rs {
		return ""
	}
	return string(bytes.TrimSpace(l[rs:re]))
}

func (l line) at(column int) byte {
	i := column - 1
	if i < 0 || i >= len(l) {
		return 0
	}
	return l[i]
}
