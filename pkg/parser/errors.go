package parser

import (
	"errors"
	"fmt"
)

var ErrNoAlphaCarbons = errors.New("no alpha carbon atoms")

// ParseError reports why a structure file could not be turned into a record.
// Line is zero when the failure is not tied to a line.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("failed to parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
