package annotate

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"proteinshake/pkg/loader"
	"proteinshake/pkg/protein"
)

// Molecule is the header information of one DB2 file.
type Molecule struct {
	ID     string
	SMILES string
}

// ParseDB2 reads the molecule id from the first line and the SMILES string
// from the third line of a DB2 file, plain or gzip.
func ParseDB2(data []byte) (Molecule, error) {
	data, err := loader.Decompress(data)
	if err != nil {
		return Molecule{}, fmt.Errorf("failed to decompress db2: %w", err)
	}

	var m Molecule
	sc := bufio.NewScanner(bytes.NewReader(data))
	for i := 0; i < 3 && sc.Scan(); i++ {
		fields := strings.Fields(sc.Text())
		switch i {
		case 0:
			if len(fields) < 2 {
				return m, errors.New("db2 header has no molecule id")
			}
			m.ID = fields[1]
		case 2:
			if len(fields) < 2 {
				return m, errors.New("db2 header has no smiles")
			}
			m.SMILES = fields[1]
		}
	}
	if err := sc.Err(); err != nil {
		return m, err
	}
	if m.SMILES == "" {
		return m, errors.New("db2 header is truncated")
	}
	return m, nil
}

// LigandDecoys adds the actives and property matched decoys of a docking
// target. Molecules are read from <Dir>/ligands_<ID>/ and <Dir>/decoys_<ID>/.
type LigandDecoys struct {
	Dir    string
	Loader loader.FileLoader
}

var decoyModes = []string{"decoys", "ligands"}

func (l LigandDecoys) Annotate(ctx context.Context, rec *protein.Record) (*protein.Record, error) {
	total := 0
	for _, mode := range decoyModes {
		dir := path.Join(l.Dir, mode+"_"+rec.ID)
		files, err := l.Loader.List(ctx, dir, "*")
		if err != nil {
			if errors.Is(err, loader.ErrNotFound) {
				return nil, Drop("%s has no %s", rec.ID, mode)
			}
			return nil, err
		}

		ids := make([]string, 0, len(files))
		smiles := make([]string, 0, len(files))
		for _, f := range files {
			data, err := l.Loader.ReadFile(ctx, f)
			if err != nil {
				return nil, err
			}
			m, err := ParseDB2(data)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", f, err)
			}
			ids = append(ids, m.ID)
			smiles = append(smiles, m.SMILES)
		}

		protein.SetProtein(rec, mode+"_ids", ids)
		protein.SetProtein(rec, mode+"_smiles", smiles)
		protein.SetProtein(rec, "num_"+mode, len(ids))
		total += len(ids)
	}
	protein.SetProtein(rec, "num_mols", total)
	return rec, nil
}
