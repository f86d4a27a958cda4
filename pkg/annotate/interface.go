package annotate

import (
	"context"
	"sort"

	"proteinshake/pkg/graph"
	"proteinshake/pkg/protein"
)

const DefaultInterfaceCutoff = 6.0

// ChainKey identifies an ordered pair of chains of one structure.
type ChainKey struct {
	PDB    string
	ChainA string
	ChainB string
}

// Contact is a residue pair across two chains. I and J are positions within
// the residues of ChainA and ChainB, in record order.
type Contact struct {
	I, J int
}

// InterfaceTable holds the residue contacts between every pair of chains of
// a set of complexes. It is built once and read-only afterwards.
type InterfaceTable struct {
	cutoff   float64
	contacts map[ChainKey][]Contact
}

// BuildInterfaceTable computes chain contacts for every record: alpha carbons
// of different chains closer than cutoff are in contact.
func BuildInterfaceTable(records []*protein.Record, cutoff float64) *InterfaceTable {
	t := &InterfaceTable{cutoff: cutoff, contacts: make(map[ChainKey][]Contact)}
	for _, rec := range records {
		for key, c := range chainContacts(rec, cutoff) {
			t.contacts[key] = c
		}
	}
	return t
}

// Contacts returns the contacts between chainA and chainB of pdb. The
// lookup is symmetric; for a reversed pair the positions are swapped.
func (t *InterfaceTable) Contacts(pdb, chainA, chainB string) ([]Contact, bool) {
	pdb = protein.NormalizeID(pdb)
	if c, ok := t.contacts[ChainKey{PDB: pdb, ChainA: chainA, ChainB: chainB}]; ok {
		return c, true
	}
	c, ok := t.contacts[ChainKey{PDB: pdb, ChainA: chainB, ChainB: chainA}]
	if !ok {
		return nil, false
	}
	swapped := make([]Contact, len(c))
	for i, x := range c {
		swapped[i] = Contact{I: x.J, J: x.I}
	}
	sort.Slice(swapped, func(a, b int) bool {
		if swapped[a].I != swapped[b].I {
			return swapped[a].I < swapped[b].I
		}
		return swapped[a].J < swapped[b].J
	})
	return swapped, true
}

// Len returns the number of chain pairs with at least one contact.
func (t *InterfaceTable) Len() int {
	return len(t.contacts)
}

// chainContacts keys contacts by chain pair with ChainA < ChainB.
func chainContacts(rec *protein.Record, cutoff float64) map[ChainKey][]Contact {
	position := make([]int, rec.Len())
	counts := make(map[string]int)
	for i, c := range rec.ChainID {
		position[i] = counts[c]
		counts[c]++
	}

	out := make(map[ChainKey][]Contact)
	pdb := protein.NormalizeID(rec.ID)
	for _, p := range graph.RadiusPairs(rec.Coords, cutoff) {
		i, j := p[0], p[1]
		a, b := rec.ChainID[i], rec.ChainID[j]
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
			i, j = j, i
		}
		key := ChainKey{PDB: pdb, ChainA: a, ChainB: b}
		out[key] = append(out[key], Contact{I: position[i], J: position[j]})
	}
	for _, c := range out {
		sort.Slice(c, func(x, y int) bool {
			if c[x].I != c[y].I {
				return c[x].I < c[y].I
			}
			return c[x].J < c[y].J
		})
	}
	return out
}

// ProteinInterface flags residues within Cutoff of a residue of another
// chain as "is_interface". Records without any interface residue are
// dropped.
type ProteinInterface struct {
	Cutoff float64
}

func (p ProteinInterface) Annotate(_ context.Context, rec *protein.Record) (*protein.Record, error) {
	cutoff := p.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultInterfaceCutoff
	}

	flags := make([]bool, rec.Len())
	found := false
	for _, pair := range graph.RadiusPairs(rec.Coords, cutoff) {
		i, j := pair[0], pair[1]
		if rec.ChainID[i] == rec.ChainID[j] {
			continue
		}
		flags[i], flags[j] = true, true
		found = true
	}
	if !found {
		return nil, Drop("%s has no chain interface", rec.ID)
	}
	if err := protein.SetResidue(rec, "is_interface", flags); err != nil {
		return nil, err
	}
	protein.SetProtein(rec, "interface_cutoff", cutoff)
	return rec, nil
}
