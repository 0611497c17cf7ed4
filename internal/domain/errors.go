package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound       = errors.New("not found")
	ErrMissingTo      = errors.New("missing required field: to")
	ErrMissingSubject = errors.New("missing required field: subject")
	ErrInvalidPayload = errors.New("request body is not a valid submission or batch")
	ErrBatchEmpty     = errors.New("batch must contain at least one row")
	ErrBatchTooLarge  = errors.New("batch exceeds the maximum number of rows")
	ErrDuplicate      = errors.New("idempotency key already processed")
	ErrInvalidID      = errors.New("record id must be a positive integer")
	ErrQueueFull      = errors.New("dispatch queue is full")
)

// ValidationError reports a submission rejected at ingestion.
// Row is the zero-based batch position, or -1 for a single submission.
type ValidationError struct {
	Row int
	Err error
}

func (e *ValidationError) Error() string {
	if e.Row < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError is a failed or timed-out send. It is never fatal to a cycle:
// the record is marked FAILED and stays eligible for the next tick.
type TransportError struct {
	Err     error
	Timeout bool
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return "transport timeout: " + e.Err.Error()
	}
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// StoreError wraps a failed append, list or conditional update.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }
