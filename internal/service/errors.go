package service

import "fmt"

// ValidationError marks malformed participant or rate data. The failing
// entity is skipped; the batch continues.
type ValidationError struct {
	Entity string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Entity, e.Reason)
}

// ExternalSourceError marks a failed fetch or parse from an external rate
// source. Source names which provider failed so the caller can decide
// whether to drop one denomination or abort the run.
type ExternalSourceError struct {
	Source string
	Err    error
}

func (e *ExternalSourceError) Error() string {
	return fmt.Sprintf("external source %s: %v", e.Source, e.Err)
}

func (e *ExternalSourceError) Unwrap() error { return e.Err }

// StoreError wraps a transactional write failure. It aborts the current
// job or batch and is never retried within the same invocation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InvariantViolation marks a broken structural guarantee, such as a missing
// foundation account or no active daynode. Fatal for the invocation.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}
