package kite

import (
	"context"
	"errors"
	"net"
	"strings"

	"trade-agent/internal/types"
)

// classify maps a Kite Connect failure onto the agent's error taxonomy.
// Kite reports its exception class in the error message (TokenException,
// NetworkException, ...), so matching on those markers is the stable way
// to bucket without depending on wire-format internals.
func classify(endpoint string, err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.Transient(endpoint, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.Transient(endpoint, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "TokenException"),
		strings.Contains(msg, "api_key"),
		strings.Contains(msg, "access_token"):
		return types.AuthFailure(endpoint, err)
	case strings.Contains(msg, "NetworkException"),
		strings.Contains(msg, "Too many requests"),
		strings.Contains(msg, "Gateway"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection"):
		return types.Transient(endpoint, err)
	case strings.Contains(msg, "InputException"),
		strings.Contains(msg, "OrderException"),
		strings.Contains(msg, "MarginException"),
		strings.Contains(msg, "HoldingException"):
		return types.Rejected(endpoint, err)
	default:
		return &types.ClassifiedError{Class: types.ClassUnknown, Endpoint: endpoint, Err: err}
	}
}

// cancelOutcome inspects a cancel failure for the two outcomes the order
// coordinator treats as non-errors.
func cancelOutcome(err error) types.CancelResult {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "COMPLETE"), strings.Contains(msg, "executed"):
		return types.CancelAlreadyExecuted
	case strings.Contains(msg, "not found"), strings.Contains(msg, "Order id is invalid"):
		return types.CancelNotFound
	default:
		return ""
	}
}
