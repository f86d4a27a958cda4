package task

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Split holds record indices, each part in ascending order.
type Split struct {
	Train []int `json:"train"`
	Val   []int `json:"val"`
	Test  []int `json:"test"`
}

type SplitParams struct {
	ValFraction  float64
	TestFraction float64
	Seed         uint64
}

var DefaultSplitParams = SplitParams{ValFraction: 0.1, TestFraction: 0.1}

// RandomSplit partitions n indices. The same n and params always produce
// the same split.
func RandomSplit(n int, params SplitParams) (Split, error) {
	vf, tf := params.ValFraction, params.TestFraction
	if vf < 0 || tf < 0 || vf+tf >= 1 {
		return Split{}, fmt.Errorf("invalid split fractions val=%v test=%v", vf, tf)
	}

	nTest := int(math.Round(float64(n) * tf))
	nVal := int(math.Round(float64(n) * vf))
	if nTest+nVal > n {
		nVal = n - nTest
	}

	perm := rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)).Perm(n)
	s := Split{
		Test:  sorted(perm[:nTest]),
		Val:   sorted(perm[nTest : nTest+nVal]),
		Train: sorted(perm[nTest+nVal:]),
	}
	return s, nil
}

func sorted(idx []int) []int {
	out := append([]int{}, idx...)
	sort.Ints(out)
	return out
}
