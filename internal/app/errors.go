package app

import "fmt"

// The engine's expected failure modes are typed so the transport layer can
// map them to structured responses instead of opaque 500s.

// ValidationError rejects a request synchronously and atomically: nothing
// was partially applied.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError tells the losing side of a per-cycle race what already
// happened ("duplicate contribution detected", "cycle already paid").
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func conflictf(format string, args ...any) *ConflictError {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// ExternalDependencyError wraps a failure of an outbound dependency after
// retries were exhausted. Engine state is left consistent and retryable.
type ExternalDependencyError struct {
	Reason string
	Err    error
}

func (e *ExternalDependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }

// IntegrityViolation marks a state that the at-most-once guarantees should
// have made impossible. The engine halts further payouts for the affected
// circle and leaves resolution to an operator rather than guessing.
type IntegrityViolation struct {
	Reason string
}

func (e *IntegrityViolation) Error() string { return e.Reason }
