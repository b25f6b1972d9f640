package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrStoreBusy is returned when a write transaction cannot be admitted before
// the caller's context expires. Callers should retry with backoff or surface
// the condition; the write is never silently dropped.
var ErrStoreBusy = errors.New("store busy: write transaction in flight")

// ErrNotFound indicates a lookup by natural key matched nothing.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// LayoutUnrecognizedError indicates a spreadsheet matched none of the known
// legacy tab signatures.
type LayoutUnrecognizedError struct {
	File string
	Tabs []string
}

func (e LayoutUnrecognizedError) Error() string {
	return fmt.Sprintf("%s: no recognized legacy layout among tabs %v", e.File, e.Tabs)
}

// MalformedRowError indicates a row that cannot be shaped against the
// recognized header for its tab.
type MalformedRowError struct {
	File   string
	Tab    string
	Row    int // 1-based source row number
	Reason string
}

func (e MalformedRowError) Error() string {
	return fmt.Sprintf("%s!%s row %d: %s", e.File, e.Tab, e.Row, e.Reason)
}

// ConflictError reports a natural-key collision with divergent values. The
// existing record is left untouched until the caller resolves explicitly.
type ConflictError struct {
	Key Key
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflicting values for existing %s", e.Key)
}

// NoWeightDataError reports that no weight record exists at or before a
// session date, so weight-derived statistics are undefined for it.
type NoWeightDataError struct {
	SubjectID string
	Date      time.Time
}

func (e NoWeightDataError) Error() string {
	return fmt.Sprintf("no weight data for %s at or before %s", e.SubjectID, e.Date.Format(DateLayout))
}
