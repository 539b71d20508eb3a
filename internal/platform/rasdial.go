package platform

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
)

// RasDial controls Windows dial-up and VPN entries through rasdial.
type RasDial struct {
	runner Runner
	logger *slog.Logger
}

// NewRasDial creates a RasDial adapter.
func NewRasDial(runner Runner, logger *slog.Logger) *RasDial {
	return &RasDial{
		runner: runner,
		logger: logging.OrDefault(logger).With("backend", BackendRasDial),
	}
}

// Name returns "rasdial".
func (r *RasDial) Name() string { return BackendRasDial }

// ListActive returns the connected entries. rasdial does not report
// addresses.
func (r *RasDial) ListActive(ctx context.Context) ([]connection.ActiveConnection, error) {
	res, err := r.runner.Run(ctx, "rasdial")
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, commandError("list connections", res)
	}

	var active []connection.ActiveConnection
	for _, name := range parseRasDialList(res.Stdout) {
		active = append(active, connection.ActiveConnection{Name: name})
	}
	return active, nil
}

// StatusOf reports Connected when name is listed, Disconnected otherwise.
func (r *RasDial) StatusOf(ctx context.Context, name string) connection.Status {
	active, err := r.ListActive(ctx)
	if err != nil {
		r.logger.Debug("status query failed", "profile", name, "error", err)
		return connection.Disconnected()
	}
	for _, a := range active {
		if strings.EqualFold(a.Name, name) {
			return connection.Connected()
		}
	}
	return connection.Disconnected()
}

// Connect dials the entry, passing the profile's username if set.
func (r *RasDial) Connect(ctx context.Context, profile connection.Profile) error {
	args := []string{profile.Name}
	if profile.Username != "" {
		args = append(args, profile.Username)
	}

	res, err := r.runner.Run(ctx, "rasdial", args...)
	if err != nil {
		return err
	}
	if !res.Success() {
		return commandError("connect", res)
	}
	return nil
}

// Disconnect hangs up the entry.
func (r *RasDial) Disconnect(ctx context.Context, name string) error {
	res, err := r.runner.Run(ctx, "rasdial", name, "/disconnect")
	if err != nil {
		return err
	}
	if !res.Success() {
		return commandError("disconnect", res)
	}
	return nil
}

// parseRasDialList extracts entry names from:
//
//	Connected to
//	Office VPN
//	Command completed successfully.
func parseRasDialList(out string) []string {
	var (
		names  []string
		inList bool
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "Connected to"):
			inList = true
		case strings.HasPrefix(line, "Command completed"):
			inList = false
		case inList:
			names = append(names, line)
		}
	}
	return names
}

var _ Adapter = (*RasDial)(nil)
