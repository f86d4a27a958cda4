package embed

import (
	"errors"
	"testing"
)

func TestOneHot(t *testing.T) {
	f := OneHot("ACG")
	got, err := f("GAC")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := [][]float32{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}}
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	}

	// rows must not alias each other
	got[0] = append(got[0], 5)
	if len(got[1]) != 3 || got[1][0] != 1 {
		t.Fatalf("expected independent rows, got %v", got[1])
	}

	if _, err := f("AXG"); !errors.Is(err, ErrUnknownResidue) {
		t.Fatalf("expected ErrUnknownResidue, got %v", err)
	}
}

func TestDefaultAlphabet(t *testing.T) {
	if len(DefaultAlphabet) != 20 {
		t.Fatalf("expected 20 letters, got %d", len(DefaultAlphabet))
	}
}

func TestTokens(t *testing.T) {
	got, err := Tokens("ACG")("CG")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got[0][0] != 1 || got[1][0] != 2 {
		t.Fatalf("expected [[1] [2]], got %v", got)
	}
}

func TestComposition(t *testing.T) {
	got := Composition("ACG", "AAXC")
	want := []float32{2.0 / 3, 1.0 / 3, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if c := Composition("ACG", ""); c[0] != 0 {
		t.Fatalf("expected zeros for empty sequence, got %v", c)
	}
}
