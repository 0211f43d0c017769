package types

import "fmt"

// TransportError reports a network or HTTP failure talking to an external
// API (LLM, OCR, or a mail provider).
type TransportError struct {
	Op  string // which call failed, e.g. "ocrspace.parse"
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a transport failure of op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// AlignmentError reports a classifier response that cannot be mapped back
// onto the input fragments. The pipeline treats it as "classification
// unavailable" for the affected image rather than guessing a mapping.
type AlignmentError struct {
	Want   int // number of input fragments
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("classifier response cannot be aligned to %d fragments: %s", e.Want, e.Reason)
}

// ValidationError reports malformed caller input, raised before any
// external call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
