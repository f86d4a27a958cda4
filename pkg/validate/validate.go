// Package validate implements the inclusion policy applied to parsed records.
package validate

import (
	"proteinshake/pkg/protein"
)

// Reason names why a record was rejected. The empty Reason means accepted.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonEmpty          Reason = "empty record"
	ReasonLengthMismatch Reason = "parallel fields differ in length"
	ReasonMultipleChains Reason = "more than one chain"
	ReasonNonContiguous  Reason = "residue numbering is not contiguous from 1"
	ReasonNonStandard    Reason = "non-standard residue"
)

type ValidatorParams struct {
	SingleChainOnly            bool
	RequireContiguousNumbering bool
	// Residues is the table the records were parsed with. Defaults to
	// protein.StandardResidues.
	Residues protein.ResidueTable
}

type Validator struct {
	singleChainOnly bool
	contiguous      bool
	alphabet        [256]bool
}

func NewValidator(params ValidatorParams) *Validator {
	v := &Validator{
		singleChainOnly: params.SingleChainOnly,
		contiguous:      params.RequireContiguousNumbering,
	}
	table := params.Residues
	if table == nil {
		table = protein.StandardResidues
	}
	for _, c := range table {
		v.alphabet[c] = true
	}
	v.alphabet[protein.UnmappedCode] = false
	return v
}

// Validate reports whether r passes the policy. It never modifies r.
func (v *Validator) Validate(r *protein.Record) (bool, Reason) {
	n := r.Len()
	if n == 0 {
		return false, ReasonEmpty
	}
	if len(r.Sequence) != n || len(r.ChainID) != n || len(r.Coords) != n {
		return false, ReasonLengthMismatch
	}

	for i := 0; i < len(r.Sequence); i++ {
		if !v.alphabet[r.Sequence[i]] {
			return false, ReasonNonStandard
		}
	}

	if v.singleChainOnly {
		for _, c := range r.ChainID[1:] {
			if c != r.ChainID[0] {
				return false, ReasonMultipleChains
			}
		}
	}

	if v.contiguous {
		for i, num := range r.ResidueIndex {
			if num != i+1 {
				return false, ReasonNonContiguous
			}
		}
	}

	return true, ReasonNone
}
