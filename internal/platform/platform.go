// Package platform implements connection probes and actuators on top of
// the operating system's VPN command-line tools.
package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
)

var (
	// ErrUnsupportedPlatform is returned when no adapter exists for the
	// current operating system.
	ErrUnsupportedPlatform = errors.New("VPN control not supported on this platform")
	// ErrNoService is returned when the system has no VPN service by the
	// requested name.
	ErrNoService = errors.New("no system VPN service")
	// ErrAuthRequired is returned when the system tool asks for
	// interactive authentication.
	ErrAuthRequired = errors.New("VPN authentication required")
)

// Adapter is a named control surface for one family of system tools.
type Adapter interface {
	connection.System
	Name() string
}

// Backend names accepted by ForName.
const (
	BackendAuto    = "auto"
	BackendNMCLI   = "nmcli"
	BackendSCUtil  = "scutil"
	BackendRasDial = "rasdial"
)

// Detect returns the adapter for the current operating system.
func Detect(runner Runner, logger *slog.Logger) Adapter {
	return newPlatformAdapter(orExec(runner, logger), logging.OrDefault(logger))
}

// ForName returns the adapter registered under name. An empty name or
// "auto" falls back to Detect.
func ForName(name string, runner Runner, logger *slog.Logger) (Adapter, error) {
	logger = logging.OrDefault(logger)
	runner = orExec(runner, logger)

	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendAuto:
		return Detect(runner, logger), nil
	case BackendNMCLI:
		return NewNetworkManager(runner, logger), nil
	case BackendSCUtil:
		return NewSCUtil(runner, logger), nil
	case BackendRasDial:
		return NewRasDial(runner, logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (expected auto, nmcli, scutil or rasdial)", name)
	}
}

func orExec(runner Runner, logger *slog.Logger) Runner {
	if runner != nil {
		return runner
	}
	return NewExecRunner(logger)
}

// commandError turns a failed invocation into an error carrying the tool's
// own message.
func commandError(action string, res Result) error {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	return fmt.Errorf("failed to %s: %s", action, msg)
}
