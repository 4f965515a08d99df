package errors

import "fmt"

// ParseError wraps a specific error with context about where it occurred.
type ParseError struct {
	Line   int
	Record []string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %v (record: %v)", e.Line, e.Err, e.Record)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// CSV ingestion errors.
var (
	ErrInvalidFieldCount = fmt.Errorf("invalid field count")
	ErrMissingColumn     = fmt.Errorf("missing required column")
	ErrMissingAgentID    = fmt.Errorf("missing agent id")
	ErrInvalidDate       = fmt.Errorf("invalid date")
	ErrEmptyInput        = fmt.Errorf("empty input")
)

// Engine and caller-input errors.
var (
	ErrInvalidRange        = fmt.Errorf("end date must not be before start date")
	ErrUnknownAgent        = fmt.Errorf("agent not found in schedule")
	ErrInvalidOverrideType = fmt.Errorf("invalid override type")
)
