package protein

import (
	"maps"
	"slices"
)

// UnmappedCode is written into Sequence for residue names missing from the
// parser's table. Records containing it never pass validation.
const UnmappedCode = '?'

// ResidueTable maps three-letter residue names to one-letter codes.
type ResidueTable map[string]byte

// StandardResidues covers the twenty canonical amino acids.
var StandardResidues = ResidueTable{
	"ALA": 'A', "CYS": 'C', "ASP": 'D', "GLU": 'E', "PHE": 'F',
	"GLY": 'G', "HIS": 'H', "ILE": 'I', "LYS": 'K', "LEU": 'L',
	"MET": 'M', "ASN": 'N', "PRO": 'P', "GLN": 'Q', "ARG": 'R',
	"SER": 'S', "THR": 'T', "VAL": 'V', "TRP": 'W', "TYR": 'Y',
}

// ExtendedResidues adds the protonation and disulfide variants written by
// force-field preparation tools, as found in PDBBind pockets.
var ExtendedResidues = StandardResidues.With(ResidueTable{
	"CYZ": 'C', "CYX": 'C', "HIP": 'H', "HID": 'H', "HIE": 'H',
})

// With returns a new table containing t overlaid with extra.
func (t ResidueTable) With(extra ResidueTable) ResidueTable {
	out := maps.Clone(t)
	maps.Copy(out, extra)
	return out
}

// Code maps a residue name to its code, or UnmappedCode.
func (t ResidueTable) Code(name string) byte {
	if c, ok := t[name]; ok {
		return c
	}
	return UnmappedCode
}

// Alphabet returns the distinct one-letter codes of the table, sorted.
func (t ResidueTable) Alphabet() string {
	set := make(map[byte]struct{}, len(t))
	for _, c := range t {
		set[c] = struct{}{}
	}
	codes := slices.Sorted(maps.Keys(set))
	return string(codes)
}

// Contains reports whether code is produced by the table.
func (t ResidueTable) Contains(code byte) bool {
	for _, c := range t {
		if c == code {
			return true
		}
	}
	return false
}
