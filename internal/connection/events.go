package connection

// EventType identifies an orchestrator progress event.
type EventType string

const (
	EventAttempt     EventType = "attempt"
	EventConflict    EventType = "conflict"
	EventRetry       EventType = "retry"
	EventStabilizing EventType = "stabilizing"
	EventIntruder    EventType = "intruder"
	EventSucceeded   EventType = "succeeded"
	EventFailed      EventType = "failed"
)

// Event reports orchestrator progress to a caller.
type Event struct {
	Type        EventType
	Op          string
	Profile     string
	Attempt     int
	MaxAttempts int
	// Sample and Samples are set for EventStabilizing.
	Sample  int
	Samples int
	// Other names the conflicting profile for EventConflict and EventIntruder.
	Other string
	Err   error
}

// Status returns the display status implied by the event, and false for
// events that do not imply one.
func (e Event) Status() (Status, bool) {
	switch e.Type {
	case EventAttempt:
		if e.Op != OpConnect {
			return Disconnecting(), true
		}
		if e.Attempt > 1 {
			return Retrying(e.Attempt, e.MaxAttempts), true
		}
		return Connecting(), true
	case EventSucceeded:
		if e.Op == OpConnect {
			return Connected(), true
		}
		return Disconnected(), true
	case EventFailed:
		msg := ""
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return Failed(msg), true
	}
	return Status{}, false
}

// Observer receives orchestrator events. OnEvent is called synchronously
// from the operation and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(e Event) { f(e) }
