package annotate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"proteinshake/pkg/protein"
)

// ECIndex maps upper-cased "<PDB>-<chain>" keys to EC numbers.
type ECIndex map[string][]string

// ParseECAnnotations reads a DeepFRI style EC annotation table. Header lines
// and the EC vocabulary line below "### EC-numbers" are skipped; every other
// line is "<PDB>-<chain>\t<ec>,<ec>,...".
func ParseECAnnotations(r io.Reader) (ECIndex, error) {
	index := make(ECIndex)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	vocabulary := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, "#") {
			vocabulary = strings.Contains(line, "EC-numbers") && !strings.Contains(line, "PDB")
			continue
		}
		if vocabulary {
			vocabulary = false
			continue
		}
		key, value, ok := strings.Cut(line, "\t")
		if !ok || key == "" {
			continue
		}
		var numbers []string
		for _, ec := range strings.Split(value, ",") {
			if ec = strings.TrimSpace(ec); ec != "" {
				numbers = append(numbers, ec)
			}
		}
		index[protein.NormalizeID(key)] = numbers
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ec annotations: %w", err)
	}
	return index, nil
}

// Lookup finds the EC numbers of a record, trying "<ID>-<chain>" for the
// record's first chain before the bare id.
func (idx ECIndex) Lookup(rec *protein.Record) ([]string, bool) {
	id := protein.NormalizeID(rec.ID)
	if len(rec.ChainID) > 0 {
		if ec, ok := idx[id+"-"+protein.NormalizeID(rec.ChainID[0])]; ok {
			return ec, true
		}
	}
	ec, ok := idx[id]
	return ec, ok
}

// EnzymeCommission adds "EC" to records that have at least one EC number
// and drops the rest.
type EnzymeCommission struct {
	Index ECIndex
}

func (e EnzymeCommission) Annotate(_ context.Context, rec *protein.Record) (*protein.Record, error) {
	ec, ok := e.Index.Lookup(rec)
	if !ok || len(ec) == 0 {
		return nil, Drop("%s has no ec annotation", rec.ID)
	}
	protein.SetProtein(rec, "EC", ec)
	return rec, nil
}
