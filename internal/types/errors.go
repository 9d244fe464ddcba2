package types

import (
	"errors"
	"fmt"
)

// ErrClass buckets external-call failures for the retry and escalation
// policies. Only ClassTransient is retryable.
type ErrClass string

const (
	ClassTransient ErrClass = "TRANSIENT"
	ClassAuth      ErrClass = "AUTH"
	ClassRejected  ErrClass = "REJECTED"
	ClassUnknown   ErrClass = "UNKNOWN"
)

// ClassifiedError wraps an external-call failure with its class and the
// logical endpoint that produced it.
type ClassifiedError struct {
	Class    ErrClass
	Endpoint string
	Err      error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable network-class failure.
func Transient(endpoint string, err error) error {
	return &ClassifiedError{Class: ClassTransient, Endpoint: endpoint, Err: err}
}

// AuthFailure wraps err as an authentication-class failure. The executor
// reacts by invalidating the session and retrying once.
func AuthFailure(endpoint string, err error) error {
	return &ClassifiedError{Class: ClassAuth, Endpoint: endpoint, Err: err}
}

// Rejected wraps err as a broker business-rule rejection. Never retried.
func Rejected(endpoint string, err error) error {
	return &ClassifiedError{Class: ClassRejected, Endpoint: endpoint, Err: err}
}

// Classify returns the class of err, ClassUnknown when unclassified.
func Classify(err error) ErrClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassUnknown
}

func IsTransient(err error) bool { return Classify(err) == ClassTransient }
func IsAuth(err error) bool      { return Classify(err) == ClassAuth }
func IsRejected(err error) bool  { return Classify(err) == ClassRejected }

// AuthenticationError reports a failed session renewal. It is not retried by
// the guard; the calling task decides whether to abort or propagate.
type AuthenticationError struct {
	Account string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for account %s: %v", e.Account, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// DanglingExitError means a limit exit was cancelled but the replacement
// market order could not be placed: the position has no protecting exit
// order. Escalated for manual intervention, never blind-retried.
type DanglingExitError struct {
	Symbol  string
	OrderID string
	Attempt string
	Err     error
}

func (e *DanglingExitError) Error() string {
	return fmt.Sprintf("dangling exit on %s (order %s, %s): %v", e.Symbol, e.OrderID, e.Attempt, e.Err)
}

func (e *DanglingExitError) Unwrap() error { return e.Err }

// ErrBreakerOpen is returned without a network attempt while a circuit
// breaker is open.
var ErrBreakerOpen = errors.New("circuit breaker open")

// ErrNoData marks an empty indicator series, treated as "unavailable".
var ErrNoData = errors.New("no indicator data")
