// Package pdbtest writes small synthetic PDB files for tests.
package pdbtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Atom is one ATOM line. Empty Name means CA.
type Atom struct {
	Name    string
	AltLoc  string
	ResName string
	Chain   string
	ResNum  int
	X, Y, Z float64
}

// Line formats a in PDB fixed columns.
func Line(serial int, a Atom) string {
	name := a.Name
	if name == "" {
		name = "CA"
	}
	if len(name) < 4 {
		name = " " + name
	}
	chain := a.Chain
	if chain == "" {
		chain = "A"
	}
	alt := a.AltLoc
	if alt == "" {
		alt = " "
	}
	return fmt.Sprintf("ATOM  %5d %-4s%1s%3s %1s%4d    %8.3f%8.3f%8.3f  1.00 20.00           %1s",
		serial, name, alt, a.ResName, chain, a.ResNum, a.X, a.Y, a.Z, strings.TrimSpace(name)[:1])
}

// Chain builds CA atoms for seq (three-letter names) spaced 3.8 A apart on
// the x axis, numbered from 1.
func Chain(chain string, resNames ...string) []Atom {
	out := make([]Atom, len(resNames))
	for i, r := range resNames {
		out[i] = Atom{ResName: r, Chain: chain, ResNum: i + 1, X: 3.8 * float64(i)}
	}
	return out
}

// Content renders atoms as a complete PDB file body.
func Content(atoms []Atom) string {
	var b strings.Builder
	b.WriteString("HEADER    TEST STRUCTURE\n")
	for i, a := range atoms {
		b.WriteString(Line(i+1, a))
		b.WriteByte('\n')
	}
	b.WriteString("END\n")
	return b.String()
}

// WriteFile writes atoms to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name string, atoms []Atom) string {
	t.Helper()
	return WriteRaw(t, dir, name, Content(atoms))
}

func WriteRaw(t testing.TB, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
	return p
}
