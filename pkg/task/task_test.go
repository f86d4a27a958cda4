package task

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"proteinshake/pkg/align"
	"proteinshake/pkg/annotate"
	"proteinshake/pkg/protein"
)

func record(id string, chains string, xs ...float64) *protein.Record {
	r := &protein.Record{ID: id}
	for i, x := range xs {
		r.Sequence += "A"
		r.ResidueIndex = append(r.ResidueIndex, i+1)
		r.ChainID = append(r.ChainID, string(chains[i]))
		r.Coords = append(r.Coords, protein.Point{X: x})
	}
	return r
}

func TestBindingSite_Targets(t *testing.T) {
	r := record("1abc", "AAA", 0, 4, 8)
	if err := protein.SetResidue(r, AttrBindingSite, []bool{false, true, true}); err != nil {
		t.Fatal(err)
	}

	got, err := BindingSite{}.Targets([]*protein.Record{r})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !reflect.DeepEqual(got, [][]bool{{false, true, true}}) {
		t.Fatalf("unexpected targets %v", got)
	}

	_, err = BindingSite{}.Targets([]*protein.Record{record("2xyz", "A", 0)})
	if !errors.Is(err, ErrMissingTarget) {
		t.Fatalf("expected ErrMissingTarget, got %v", err)
	}
}

func TestLigandAffinity_Targets(t *testing.T) {
	r := record("1abc", "A", 0)
	protein.SetProtein(r, AttrNegLogAff, 6.5)

	got, err := LigandAffinity{}.Targets([]*protein.Record{r})
	if err != nil || len(got) != 1 || got[0] != 6.5 {
		t.Fatalf("expected [6.5], got %v (%v)", got, err)
	}
	if (LigandAffinity{}).Type() != TypeRegression {
		t.Fatalf("expected regression task")
	}
}

func TestProteinInterface_ContactMap(t *testing.T) {
	// chain A at x=0,10 and chain B at x=3,30: only A0-B0 are in contact
	r := record("1cpx", "AABB", 0, 10, 3, 30)
	table := annotate.BuildInterfaceTable([]*protein.Record{r}, annotate.DefaultInterfaceCutoff)
	task := ProteinInterface{Table: table}

	got, err := task.ContactMap(r, "A", "B")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := [][]bool{{true, false}, {false, false}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	rev, err := task.ContactMap(r, "B", "A")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !reflect.DeepEqual(rev, want) {
		t.Fatalf("expected transposed %v, got %v", want, rev)
	}

	if _, err := task.ContactMap(r, "A", "C"); err == nil {
		t.Fatal("expected error for missing chain")
	}
}

func TestProteinInterface_ContactMapWithoutTable(t *testing.T) {
	r := record("1cpx", "AABB", 0, 10, 3, 30)
	if _, err := (ProteinInterface{}).ContactMap(r, "A", "B"); !errors.Is(err, ErrMissingTarget) {
		t.Fatalf("expected ErrMissingTarget, got %v", err)
	}
}

func similarity(t *testing.T, ids []string, tm map[[2]string]float64) *align.Matrix {
	t.Helper()
	aligner := align.AlignerFunc(func(_ context.Context, a, b string) (align.Result, error) {
		return align.Result{TM1: tm[[2]string{a, b}], TM2: tm[[2]string{b, a}]}, nil
	})
	m, _, err := align.ComputeMatrix(context.Background(), ids, ids, align.MatrixParams{Aligner: aligner, Parallel: 2})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestStructureSimilarity(t *testing.T) {
	ids := []string{"a", "b", "c"}
	m := similarity(t, ids, map[[2]string]float64{
		{"a", "b"}: 0.9, {"b", "a"}: 0.85,
		{"a", "c"}: 0.3, {"c", "a"}: 0.4,
		{"b", "c"}: 0.5, {"c", "b"}: 0.5,
	})
	records := []*protein.Record{record("a", "A", 0), record("b", "A", 0), record("c", "A", 0)}

	task := StructureSimilarity{Matrix: m}
	pairs := task.Pairs([]int{0, 2, 1})
	wantPairs := [][2]int{{0, 2}, {0, 1}, {2, 1}}
	if !reflect.DeepEqual(pairs, wantPairs) {
		t.Fatalf("expected %v, got %v", wantPairs, pairs)
	}
	got, err := task.Targets(records, pairs)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if want := []float64{0.3, 0.9, 0.5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStructureSearch_Targets(t *testing.T) {
	ids := []string{"a", "b", "c"}
	m := similarity(t, ids, map[[2]string]float64{
		{"a", "b"}: 0.9, {"b", "a"}: 0.7,
		{"a", "c"}: 0.8, {"c", "a"}: 0.2,
	})
	records := []*protein.Record{record("a", "A", 0), record("b", "A", 0), record("c", "A", 0)}

	got := StructureSearch{Matrix: m}.Targets(records)
	want := map[string][]string{"a": {"b", "c"}, "b": {}, "c": {}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got = StructureSearch{Matrix: m, MinSimilarity: 0.5}.Targets(records)
	if !reflect.DeepEqual(got["b"], []string{"a"}) {
		t.Fatalf("expected b -> [a], got %v", got["b"])
	}
}
