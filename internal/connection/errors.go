package connection

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify errors returned by this package.
var (
	ErrConflict        = errors.New("conflicting connection still active")
	ErrActuator        = errors.New("external command failed")
	ErrTimeout         = errors.New("timeout")
	ErrStabilization   = errors.New("connection not stable")
	ErrErrorStatus     = errors.New("system reported error")
	ErrProfileNotFound = errors.New("profile not found")
	ErrBusy            = errors.New("another operation is in progress")
)

// ConflictError reports a profile that could not be confirmed disconnected
// before connecting another one.
type ConflictError struct {
	Profile string
	Target  string
	Err     error
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("failed to disconnect previous VPN %q before connecting %q: state still not disconnected", e.Profile, e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// ActuatorError is an external connect/disconnect command failure. The
// message of the underlying error is surfaced verbatim.
type ActuatorError struct {
	Op      string
	Profile string
	Err     error
}

func (e *ActuatorError) Error() string {
	return e.Err.Error()
}

// Is matches ErrActuator.
func (e *ActuatorError) Is(target error) bool { return target == ErrActuator }

func (e *ActuatorError) Unwrap() error { return e.Err }

// StatusError is an explicit Error status observed while waiting for an
// operation to settle.
type StatusError struct {
	Profile string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status error for %s: %s", e.Profile, e.Message)
}

// Is matches ErrErrorStatus.
func (e *StatusError) Is(target error) bool { return target == ErrErrorStatus }

// StabilizationError reports a connect that succeeded but did not hold.
type StabilizationError struct {
	Profile string
	Reason  string
	Err     error
}

func (e *StabilizationError) Error() string {
	msg := fmt.Sprintf("connection to %s not stable: %s", e.Profile, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches ErrStabilization.
func (e *StabilizationError) Is(target error) bool { return target == ErrStabilization }

func (e *StabilizationError) Unwrap() error { return e.Err }

// AttemptsError summarizes an operation that failed on every attempt. It
// wraps the error of the last attempt.
type AttemptsError struct {
	Op       string
	Profile  string
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("failed to %s %s after %d attempts: %v", e.Op, e.Profile, e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error { return e.Err }
