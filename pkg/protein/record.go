package protein

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// ErrScopeLength is returned when a residue or atom scoped value does not
// line up with the record it is attached to.
var ErrScopeLength = errors.New("attribute length does not match scope")

type Scope string

const (
	ScopeProtein Scope = "protein"
	ScopeResidue Scope = "residue"
	ScopeAtom    Scope = "atom"
)

// Point is a position in Angstrom.
type Point struct {
	X, Y, Z float64
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

func (p Point) Dist2(q Point) float64 {
	d := p.Sub(q)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

func (p Point) Dist(q Point) float64 {
	return math.Sqrt(p.Dist2(q))
}

// Attributes holds the free-form values of a record, one map per scope.
type Attributes struct {
	Protein map[string]any
	Residue map[string]any
	Atom    map[string]any
}

func (a *Attributes) scope(s Scope) map[string]any {
	switch s {
	case ScopeProtein:
		if a.Protein == nil {
			a.Protein = make(map[string]any)
		}
		return a.Protein
	case ScopeResidue:
		if a.Residue == nil {
			a.Residue = make(map[string]any)
		}
		return a.Residue
	case ScopeAtom:
		if a.Atom == nil {
			a.Atom = make(map[string]any)
		}
		return a.Atom
	}
	return nil
}

// Record is the canonical representation of one structure. Sequence,
// ResidueIndex, ChainID and Coords are parallel, one entry per residue.
type Record struct {
	ID           string
	Sequence     string
	ResidueIndex []int
	ChainID      []string
	Coords       []Point
	AtomCount    int
	Attributes   Attributes
}

// Len returns the residue count.
func (r *Record) Len() int {
	return len(r.ResidueIndex)
}

// Chains returns the distinct chain labels in order of first appearance.
func (r *Record) Chains() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range r.ChainID {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Consistent reports whether the parallel residue fields and every scoped
// attribute have the lengths the record implies.
func (r *Record) Consistent() error {
	n := r.Len()
	if len(r.Sequence) != n || len(r.ChainID) != n || len(r.Coords) != n {
		return fmt.Errorf("%w: sequence=%d residue_index=%d chain_id=%d coords=%d",
			ErrScopeLength, len(r.Sequence), n, len(r.ChainID), len(r.Coords))
	}
	for key, v := range r.Attributes.Residue {
		if l, ok := sliceLen(v); !ok || l != n {
			return fmt.Errorf("%w: residue attribute %q", ErrScopeLength, key)
		}
	}
	for key, v := range r.Attributes.Atom {
		if l, ok := sliceLen(v); !ok || l != r.AtomCount {
			return fmt.Errorf("%w: atom attribute %q", ErrScopeLength, key)
		}
	}
	return nil
}

// Clone returns a copy that shares no slices or maps with r. Attribute
// values themselves are copied by reference.
func (r *Record) Clone() *Record {
	out := &Record{
		ID:           r.ID,
		Sequence:     r.Sequence,
		ResidueIndex: append([]int(nil), r.ResidueIndex...),
		ChainID:      append([]string(nil), r.ChainID...),
		Coords:       append([]Point(nil), r.Coords...),
		AtomCount:    r.AtomCount,
	}
	out.Attributes.Protein = cloneMap(r.Attributes.Protein)
	out.Attributes.Residue = cloneMap(r.Attributes.Residue)
	out.Attributes.Atom = cloneMap(r.Attributes.Atom)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SetProtein stores a single per-record value.
func SetProtein(r *Record, key string, value any) {
	r.Attributes.scope(ScopeProtein)[key] = value
}

// SetResidue stores one value per residue. The slice must be in record order.
func SetResidue[T any](r *Record, key string, values []T) error {
	if len(values) != r.Len() {
		return fmt.Errorf("%w: residue attribute %q has %d values, record has %d residues",
			ErrScopeLength, key, len(values), r.Len())
	}
	r.Attributes.scope(ScopeResidue)[key] = values
	return nil
}

// SetAtom stores one value per atom of the kept atom table.
func SetAtom[T any](r *Record, key string, values []T) error {
	if len(values) != r.AtomCount {
		return fmt.Errorf("%w: atom attribute %q has %d values, record has %d atoms",
			ErrScopeLength, key, len(values), r.AtomCount)
	}
	r.Attributes.scope(ScopeAtom)[key] = values
	return nil
}

// Get looks up an attribute and asserts its type.
func Get[T any](r *Record, scope Scope, key string) (T, bool) {
	var zero T
	var m map[string]any
	switch scope {
	case ScopeProtein:
		m = r.Attributes.Protein
	case ScopeResidue:
		m = r.Attributes.Residue
	case ScopeAtom:
		m = r.Attributes.Atom
	}
	v, ok := m[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// NormalizeID is the form under which side tables key records.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func sliceLen(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return 0, false
	}
	return rv.Len(), true
}
