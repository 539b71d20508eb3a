package connection

import "context"

// Probe reads ground truth from the system's network configuration. It
// never mutates a Store; callers reconcile with its results.
type Probe interface {
	// ListActive returns the active VPN-type connections. Lines of tool
	// output that cannot be parsed are skipped. An error means the tool
	// itself could not be queried.
	ListActive(ctx context.Context) ([]ActiveConnection, error)
	// StatusOf returns the reported state of one profile, Disconnected
	// when nothing recognizable is reported.
	StatusOf(ctx context.Context, name string) Status
}

// Actuator asks the system to bring a profile up or down. Calls are single
// shot and may block for as long as the external tool runs.
type Actuator interface {
	Connect(ctx context.Context, profile Profile) error
	Disconnect(ctx context.Context, name string) error
}

// System is a control surface that both probes and actuates.
type System interface {
	Probe
	Actuator
}
