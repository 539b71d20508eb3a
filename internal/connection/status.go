// Package connection keeps an in-memory view of VPN connection state in sync
// with what the operating system reports, and drives connect/disconnect
// transitions through an external control surface while enforcing that at
// most one profile is active at a time.
package connection

import "fmt"

// State is the coarse connection state of a profile.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	// StateRetrying annotates an in-progress connect for display. It is
	// never persisted in a Store.
	StateRetrying State = "retrying"
	StateError    State = "error"
)

// Status is the state of a profile plus the data some states carry.
type Status struct {
	State       State  `json:"state"`
	Message     string `json:"message,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
}

// Disconnected returns the Disconnected status.
func Disconnected() Status { return Status{State: StateDisconnected} }

// Connecting returns the Connecting status.
func Connecting() Status { return Status{State: StateConnecting} }

// Connected returns the Connected status.
func Connected() Status { return Status{State: StateConnected} }

// Disconnecting returns the Disconnecting status.
func Disconnecting() Status { return Status{State: StateDisconnecting} }

// Retrying returns the display annotation for attempt out of max.
func Retrying(attempt, max int) Status {
	return Status{State: StateRetrying, Attempt: attempt, MaxAttempts: max}
}

// Failed returns an Error status carrying msg.
func Failed(msg string) Status { return Status{State: StateError, Message: msg} }

// Is reports whether the status is in the given state.
func (s Status) Is(state State) bool {
	return s.State == state
}

// IsZero reports whether the status was never set.
func (s Status) IsZero() bool {
	return s.State == ""
}

// Transitional reports whether the status is expected to change on its own.
func (s Status) Transitional() bool {
	switch s.State {
	case StateConnecting, StateDisconnecting, StateRetrying:
		return true
	}
	return false
}

// String returns a short human-readable label.
func (s Status) String() string {
	switch s.State {
	case StateConnected:
		return "Connected"
	case StateConnecting:
		return "Connecting..."
	case StateRetrying:
		return fmt.Sprintf("Retry %d/%d...", s.Attempt, s.MaxAttempts)
	case StateDisconnected, "":
		return "Disconnected"
	case StateDisconnecting:
		return "Disconnecting..."
	case StateError:
		if s.Message == "" {
			return "Error"
		}
		return "Error: " + s.Message
	default:
		return string(s.State)
	}
}
