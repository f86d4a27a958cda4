package batch

import (
	"errors"
	"fmt"

	"proteinshake/pkg/protein"
	"proteinshake/pkg/validate"

	"go.uber.org/multierr"
)

// ErrNoRecords is returned when a non-empty batch produced no record. The
// dataset cannot be built from it.
var ErrNoRecords = errors.New("no records survived the batch")

// Phase is the pipeline step a file failed in.
type Phase string

const (
	PhaseParse    Phase = "parse"
	PhaseValidate Phase = "validate"
	PhaseAnnotate Phase = "annotate"
)

// Failure describes why one file did not produce a record.
type Failure struct {
	Path   string
	Phase  Phase
	Reason validate.Reason
	Err    error
}

func (f Failure) Error() string {
	if f.Phase == PhaseValidate {
		return fmt.Sprintf("%s: rejected: %s", f.Path, f.Reason)
	}
	return fmt.Sprintf("%s: %s failed: %v", f.Path, f.Phase, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Outcome is the result of one file: either Record or Failure is set.
type Outcome struct {
	Path    string
	Record  *protein.Record
	Failure *Failure
}

// Result is the partition of a batch's outcomes. Records keep the order of
// the input files.
type Result struct {
	Total    int
	Records  []*protein.Record
	Failures []Failure
}

func (r *Result) Failed() int {
	return len(r.Failures)
}

// FailedBy counts failures per phase.
func (r *Result) FailedBy() map[Phase]int {
	out := make(map[Phase]int)
	for _, f := range r.Failures {
		out[f.Phase]++
	}
	return out
}

// Err combines every failure into one error, or nil.
func (r *Result) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

// partition folds outcomes into a Result, keeping their order.
func partition(outcomes []Outcome) *Result {
	res := &Result{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Failure != nil {
			res.Failures = append(res.Failures, *o.Failure)
			continue
		}
		res.Records = append(res.Records, o.Record)
	}
	return res
}
