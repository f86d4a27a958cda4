package task

import (
	"reflect"
	"testing"
)

func TestRandomSplit(t *testing.T) {
	s, err := RandomSplit(100, DefaultSplitParams)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(s.Train) != 80 || len(s.Val) != 10 || len(s.Test) != 10 {
		t.Fatalf("expected 80/10/10, got %d/%d/%d", len(s.Train), len(s.Val), len(s.Test))
	}

	seen := make(map[int]bool)
	for _, part := range [][]int{s.Train, s.Val, s.Test} {
		for i, idx := range part {
			if i > 0 && part[i-1] >= idx {
				t.Fatalf("expected ascending indices, got %v", part)
			}
			if seen[idx] {
				t.Fatalf("index %d in two parts", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != 100 {
		t.Fatalf("expected 100 indices, got %d", len(seen))
	}
}

func TestRandomSplit_Deterministic(t *testing.T) {
	params := SplitParams{ValFraction: 0.2, TestFraction: 0.2, Seed: 7}
	a, _ := RandomSplit(50, params)
	b, _ := RandomSplit(50, params)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expected identical splits for the same seed")
	}

	params.Seed = 8
	c, _ := RandomSplit(50, params)
	if reflect.DeepEqual(a, c) {
		t.Fatal("expected a different split for another seed")
	}
}

func TestRandomSplit_InvalidFractions(t *testing.T) {
	for _, p := range []SplitParams{{ValFraction: -0.1}, {ValFraction: 0.5, TestFraction: 0.5}} {
		if _, err := RandomSplit(10, p); err == nil {
			t.Fatalf("expected error for %+v", p)
		}
	}
}

func TestRandomSplit_Small(t *testing.T) {
	s, err := RandomSplit(1, DefaultSplitParams)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(s.Train) != 1 || len(s.Val) != 0 || len(s.Test) != 0 {
		t.Fatalf("expected the single index in train, got %+v", s)
	}
}
