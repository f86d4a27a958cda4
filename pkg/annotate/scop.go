package annotate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"proteinshake/pkg/protein"
)

// scop-cla columns: FA-DOMID FA-PDBID FA-PDBREG FA-UNIID FA-UNIREG SF-DOMID
// SF-PDBID SF-PDBREG SF-UNIID SF-UNIREG SCOPCLA
const (
	scopColumns     = 11
	scopPDBColumn   = 1
	scopClassColumn = 10
	SCOPAttrPrefix  = "SCOP-"
)

// SCOPIndex maps upper-cased PDB ids to their classification levels
// (TP, CL, CF, SF, FA).
type SCOPIndex map[string]map[string]string

// ParseSCOP reads a SCOP classification file. Later lines for the same PDB
// id replace earlier ones.
func ParseSCOP(r io.Reader) (SCOPIndex, error) {
	index := make(SCOPIndex)
	sc := bufio.NewScanner(r)
	lineNumber := 0
	for sc.Scan() {
		lineNumber++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != scopColumns {
			return nil, fmt.Errorf("scop line %d: expected %d columns, got %d", lineNumber, scopColumns, len(fields))
		}
		levels := make(map[string]string)
		for _, cla := range strings.Split(fields[scopClassColumn], ",") {
			k, v, ok := strings.Cut(cla, "=")
			if !ok {
				return nil, fmt.Errorf("scop line %d: malformed class %q", lineNumber, cla)
			}
			levels[k] = v
		}
		index[protein.NormalizeID(fields[scopPDBColumn])] = levels
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scop file: %w", err)
	}
	return index, nil
}

// SCOP annotates records with one SCOP-<level> protein attribute per
// classification level and drops records missing from the index.
type SCOP struct {
	Index SCOPIndex
}

func (s SCOP) Annotate(_ context.Context, rec *protein.Record) (*protein.Record, error) {
	levels, ok := s.Index[protein.NormalizeID(rec.ID)]
	if !ok {
		return nil, Drop("%s has no scop classification", rec.ID)
	}
	for level, value := range levels {
		protein.SetProtein(rec, SCOPAttrPrefix+level, value)
	}
	return rec, nil
}
