// Package align runs the external TMalign structural aligner and collects
// pairwise similarities.
package align

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultBinary is looked up in PATH when no binary is configured.
const DefaultBinary = "TMalign"

var ErrToolMissing = errors.New("external aligner not found")

// ToolError is a failed alignment of one pair. It is recorded, not fatal.
type ToolError struct {
	A, B   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("align %s with %s: %v", e.A, e.B, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Result of aligning structure A onto structure B.
type Result struct {
	// TM1 is normalized by the length of A, TM2 by the length of B.
	TM1, TM2 float64
	RMSD     float64
	// Pairs holds the aligned residue positions (in A, in B).
	Pairs [][2]int
}

// Aligner aligns two structure files.
type Aligner interface {
	Align(ctx context.Context, a, b string) (Result, error)
}

// AlignerFunc adapts a function to the Aligner interface.
type AlignerFunc func(ctx context.Context, a, b string) (Result, error)

func (f AlignerFunc) Align(ctx context.Context, a, b string) (Result, error) {
	return f(ctx, a, b)
}

type TMAlign struct {
	binary string
}

type NewTMAlignParams struct {
	// Binary is a name looked up in PATH or a path. Defaults to TMalign.
	Binary string
}

func NewTMAlign(params NewTMAlignParams) (*TMAlign, error) {
	bin := params.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrToolMissing, bin, err)
	}
	return &TMAlign{binary: resolved}, nil
}

func (t *TMAlign) Align(ctx context.Context, a, b string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, Args(a, b)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &ToolError{A: a, B: b, Output: stderr.String(), Err: err}
	}

	res, err := ParseReport(stdout.String())
	if err != nil {
		return Result{}, &ToolError{A: a, B: b, Output: stdout.String(), Err: err}
	}
	return res, nil
}

// Args is the TMalign command line for aligning a onto b. The report is
// requested without the version banner, which ParseReport relies on.
func Args(a, b string) []string {
	return []string{"-outfmt", "-1", a, b}
}

// Line offsets of the values in a TMalign report written with -outfmt -1.
const (
	rmsdLine      = 6
	tm1Line       = 7
	tm2Line       = 8
	alignmentLine = 12
)

// ParseReport reads the scores and the residue alignment from TMalign
// standard output in the -outfmt -1 layout. After the chain names and
// lengths come
//
//	Aligned length=  120, RMSD=   1.53, Seq_ID=n_identical/n_aligned= 0.412
//	TM-score= 0.81234 (if normalized by length of Chain_1, ...)
//	TM-score= 0.79001 (if normalized by length of Chain_2, ...)
//
// followed three lines later by the aligned sequences of A, the match
// markers and the aligned sequence of B.
func ParseReport(out string) (Result, error) {
	lines := strings.Split(out, "\n")
	if len(lines) <= alignmentLine+2 {
		return Result{}, fmt.Errorf("report has %d lines", len(lines))
	}

	var res Result
	rmsd, err := field(lines[rmsdLine], 4)
	if err != nil {
		return Result{}, fmt.Errorf("rmsd: %w", err)
	}
	if res.RMSD, err = strconv.ParseFloat(strings.TrimSuffix(rmsd, ","), 64); err != nil {
		return Result{}, fmt.Errorf("rmsd: %w", err)
	}
	if res.TM1, err = floatField(lines[tm1Line], 1); err != nil {
		return Result{}, fmt.Errorf("tm1: %w", err)
	}
	if res.TM2, err = floatField(lines[tm2Line], 1); err != nil {
		return Result{}, fmt.Errorf("tm2: %w", err)
	}

	res.Pairs = alignedPairs(lines[alignmentLine], lines[alignmentLine+1], lines[alignmentLine+2])
	return res, nil
}

func alignedPairs(seqA, marks, seqB string) [][2]int {
	n := min(len(seqA), len(marks), len(seqB))
	pairs := [][2]int{}
	i, j := 0, 0
	for k := 0; k < n; k++ {
		if marks[k] != ' ' {
			pairs = append(pairs, [2]int{i, j})
		}
		if seqA[k] != '-' {
			i++
		}
		if seqB[k] != '-' {
			j++
		}
	}
	return pairs
}

func field(line string, i int) (string, error) {
	fields := strings.Fields(line)
	if len(fields) <= i {
		return "", fmt.Errorf("missing field %d in %q", i, line)
	}
	return fields[i], nil
}

func floatField(line string, i int) (float64, error) {
	s, err := field(line, i)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
