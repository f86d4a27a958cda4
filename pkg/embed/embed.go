// Package embed provides node feature functions that turn a residue
// sequence into one fixed-width vector per residue.
package embed

import (
	"errors"
	"fmt"
	"strings"

	"proteinshake/pkg/protein"
)

var ErrUnknownResidue = errors.New("residue not in alphabet")

// Func maps a sequence to one feature vector per residue.
type Func func(sequence string) ([][]float32, error)

// DefaultAlphabet is the one-letter alphabet of protein.StandardResidues.
var DefaultAlphabet = protein.StandardResidues.Alphabet()

// OneHot encodes each residue as a unit vector over alphabet.
func OneHot(alphabet string) Func {
	index := indexOf(alphabet)
	width := len(alphabet)
	return func(sequence string) ([][]float32, error) {
		out := make([][]float32, len(sequence))
		flat := make([]float32, len(sequence)*width)
		for i := 0; i < len(sequence); i++ {
			j, ok := index[sequence[i]]
			if !ok {
				return nil, fmt.Errorf("%w: %q at position %d", ErrUnknownResidue, sequence[i], i)
			}
			row := flat[i*width : (i+1)*width : (i+1)*width]
			row[j] = 1
			out[i] = row
		}
		return out, nil
	}
}

// Tokens encodes each residue as its position in alphabet, a one-wide
// feature for models with their own embedding layer.
func Tokens(alphabet string) Func {
	index := indexOf(alphabet)
	return func(sequence string) ([][]float32, error) {
		out := make([][]float32, len(sequence))
		for i := 0; i < len(sequence); i++ {
			j, ok := index[sequence[i]]
			if !ok {
				return nil, fmt.Errorf("%w: %q at position %d", ErrUnknownResidue, sequence[i], i)
			}
			out[i] = []float32{float32(j)}
		}
		return out, nil
	}
}

// Composition returns the relative frequency of every alphabet letter in
// sequence. Letters outside the alphabet are ignored.
func Composition(alphabet, sequence string) []float32 {
	out := make([]float32, len(alphabet))
	if len(sequence) == 0 {
		return out
	}
	n := 0
	for i := 0; i < len(sequence); i++ {
		if j := strings.IndexByte(alphabet, sequence[i]); j >= 0 {
			out[j]++
			n++
		}
	}
	if n == 0 {
		return out
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return out
}

func indexOf(alphabet string) map[byte]int {
	index := make(map[byte]int, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		index[alphabet[i]] = i
	}
	return index
}
