// Package apperr defines the error taxonomy shared across the report
// pipeline. The HTTP layer maps these onto statuses; everything else just
// wraps them with fmt.Errorf("...: %w", err).
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAuth indicates a missing or invalid bearer credential.
var ErrAuth = errors.New("authentication required")

// ErrQuotaExceeded indicates the monthly regeneration limit is spent.
var ErrQuotaExceeded = errors.New("regeneration limit reached for this month")

// ErrModelUnavailable indicates the model provider could not be reached or
// answered with a non-success status. Retryable by the caller.
var ErrModelUnavailable = errors.New("model provider unavailable")

// ErrConflict indicates a concurrent writer changed the report between the
// quota check and the write. The persisted state is one of the writers'
// results, never a blend.
var ErrConflict = errors.New("concurrent report update detected")

// ValidationError indicates a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientDataError indicates the month has too few log entries to
// analyze. RecordDays carries the count found so the client can show how
// many more days are needed.
type InsufficientDataError struct {
	RecordDays int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough log entries to generate a report (found %d, need 3)", e.RecordDays)
}

// OutputStage identifies where extraction of the model's structured output
// failed. The stages are separate so each is testable and loggable on its
// own.
type OutputStage string

const (
	StageBraceNotFound    OutputStage = "brace_not_found"
	StageJSONInvalid      OutputStage = "json_invalid"
	StageSchemaIncomplete OutputStage = "schema_incomplete"
)

// MalformedOutputError indicates the model answered but its output could not
// be recovered as a complete report payload. Not retryable without a prompt
// change, unlike ErrModelUnavailable.
type MalformedOutputError struct {
	Stage   OutputStage
	Missing []string // populated for StageSchemaIncomplete
	Raw     string   // truncated model text, for logs only
	Err     error
}

func (e *MalformedOutputError) Error() string {
	msg := fmt.Sprintf("malformed model output (%s)", e.Stage)
	if len(e.Missing) > 0 {
		msg += ": missing " + strings.Join(e.Missing, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// PersistenceError indicates a store write failed after generation
// succeeded. The quota was not incremented: the counter bump and the write
// are a single store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
