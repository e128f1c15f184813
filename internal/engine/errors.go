package engine

import (
	"errors"
	"fmt"
)

// EngineError is a step-level or construction failure.
//
// Per-neuron anomalies (stale ids, invalid slots) never produce one; they
// are skipped inside the burst.
type EngineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Burst is the burst being executed, 0 for construction errors.
	Burst uint64

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeBackendInit indicates the backend could not be built or bound
	// to the network.
	ErrCodeBackendInit ErrorCode = "BACKEND_INIT"

	// ErrCodeCapacityExceeded indicates an FCL or fire queue overflow under
	// the fail policy.
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"

	// ErrCodeBackendFailure indicates a backend phase failed mid-burst.
	ErrCodeBackendFailure ErrorCode = "BACKEND_FAILURE"

	// ErrCodeInvalidConfig indicates a rejected option.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrCodeStopped indicates a step after Stop.
	ErrCodeStopped ErrorCode = "STOPPED"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Burst > 0 {
		msg = fmt.Sprintf("%s (burst=%d)", msg, e.Burst)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *EngineError) Unwrap() error { return e.Err }

func hasCode(err error, code ErrorCode) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsBackendInitError reports whether err is a backend construction failure.
func IsBackendInitError(err error) bool { return hasCode(err, ErrCodeBackendInit) }

// IsCapacityError reports whether err is an FCL or fire queue overflow.
func IsCapacityError(err error) bool { return hasCode(err, ErrCodeCapacityExceeded) }

// IsBackendFailure reports whether err is a mid-burst backend failure.
func IsBackendFailure(err error) bool { return hasCode(err, ErrCodeBackendFailure) }

// IsConfigError reports whether err is a rejected option.
func IsConfigError(err error) bool { return hasCode(err, ErrCodeInvalidConfig) }

// IsStopped reports whether err came from a stopped engine.
func IsStopped(err error) bool { return hasCode(err, ErrCodeStopped) }

func newConfigError(format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeInvalidConfig, Message: fmt.Sprintf(format, args...)}
}

func newInitError(err error) *EngineError {
	return &EngineError{Code: ErrCodeBackendInit, Message: "backend initialization failed", Err: err}
}
