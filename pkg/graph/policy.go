package graph

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrInvalidPolicy = errors.New("invalid graph policy")

type Mode string

const (
	// ModeRadius connects residues closer than Eps.
	ModeRadius Mode = "radius"
	// ModeKNN connects every residue to its K nearest residues.
	ModeKNN Mode = "knn"
)

// Policy describes how edges are drawn between residues.
type Policy struct {
	Mode Mode    `json:"mode" yaml:"mode"`
	Eps  float64 `json:"eps,omitempty" yaml:"eps,omitempty"`
	K    int     `json:"k,omitempty" yaml:"k,omitempty"`
	// Weighted stores the Euclidean distance as edge weight; otherwise every
	// edge has weight 1.
	Weighted bool `json:"weighted" yaml:"weighted"`
	// Symmetrize adds the reverse of every k-NN edge. Radius graphs are
	// always symmetric.
	Symmetrize bool `json:"symmetrize,omitempty" yaml:"symmetrize,omitempty"`
}

func RadiusPolicy(eps float64, weighted bool) Policy {
	return Policy{Mode: ModeRadius, Eps: eps, Weighted: weighted}
}

func KNNPolicy(k int, weighted bool) Policy {
	return Policy{Mode: ModeKNN, K: k, Weighted: weighted}
}

func (p Policy) Validate() error {
	switch p.Mode {
	case ModeRadius:
		if p.Eps <= 0 {
			return fmt.Errorf("%w: eps must be positive, got %v", ErrInvalidPolicy, p.Eps)
		}
	case ModeKNN:
		if p.K <= 0 {
			return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidPolicy, p.K)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, p.Mode)
	}
	return nil
}

// Key is a short stable name for the policy, used in cache file names.
func (p Policy) Key() string {
	var key string
	switch p.Mode {
	case ModeRadius:
		key = "radius-eps" + strconv.FormatFloat(p.Eps, 'g', -1, 64)
	case ModeKNN:
		key = "knn-k" + strconv.Itoa(p.K)
		if p.Symmetrize {
			key += "-sym"
		}
	default:
		key = string(p.Mode)
	}
	if p.Weighted {
		key += "-w"
	}
	return key
}
