package model

import "fmt"

// ValidationError reports bad caller input. Never retried.
type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string {
    if e.Field == "" { return "validation: " + e.Reason }
    return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// InsufficientStopsError is returned when fewer than two stops are supplied.
type InsufficientStopsError struct {
    Count int
}

func (e *InsufficientStopsError) Error() string {
    return fmt.Sprintf("insufficient stops: need at least 2, got %d", e.Count)
}

// NotFoundError reports a referenced record that does not exist for the tenant.
type NotFoundError struct {
    Kind string
    ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

// ExternalServiceError wraps a mapping-service failure.
type ExternalServiceError struct {
    Provider string
    Op       string
    Err      error
}

func (e *ExternalServiceError) Error() string {
    return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ComputationError means the engine could not produce a valid result from the input.
type ComputationError struct {
    Reason string
    Err    error
}

func (e *ComputationError) Error() string {
    if e.Err != nil { return fmt.Sprintf("computation: %s: %v", e.Reason, e.Err) }
    return "computation: " + e.Reason
}

func (e *ComputationError) Unwrap() error { return e.Err }
