package platform

import (
	"context"
	"runtime"

	"github.com/rennerdo30/remipn/internal/connection"
)

// Unsupported is the adapter for operating systems without a known VPN
// tool. It reports nothing active and refuses to actuate.
type Unsupported struct{}

// Name returns the operating system name.
func (Unsupported) Name() string { return "unsupported/" + runtime.GOOS }

// ListActive returns an empty list.
func (Unsupported) ListActive(context.Context) ([]connection.ActiveConnection, error) {
	return nil, nil
}

// StatusOf returns Disconnected.
func (Unsupported) StatusOf(context.Context, string) connection.Status {
	return connection.Disconnected()
}

// Connect returns ErrUnsupportedPlatform.
func (Unsupported) Connect(context.Context, connection.Profile) error {
	return ErrUnsupportedPlatform
}

// Disconnect returns ErrUnsupportedPlatform.
func (Unsupported) Disconnect(context.Context, string) error {
	return ErrUnsupportedPlatform
}

var _ Adapter = Unsupported{}
