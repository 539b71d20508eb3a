package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
)

// SCUtil controls macOS network services through scutil --nc.
type SCUtil struct {
	runner Runner
	logger *slog.Logger
}

// NewSCUtil creates an SCUtil adapter.
func NewSCUtil(runner Runner, logger *slog.Logger) *SCUtil {
	return &SCUtil{
		runner: runner,
		logger: logging.OrDefault(logger).With("backend", BackendSCUtil),
	}
}

// Name returns "scutil".
func (s *SCUtil) Name() string { return BackendSCUtil }

// ListActive returns the connected network services. scutil does not
// report addresses, so the address of the first utun interface is used
// for every entry.
func (s *SCUtil) ListActive(ctx context.Context) ([]connection.ActiveConnection, error) {
	res, err := s.runner.Run(ctx, "scutil", "--nc", "list")
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, commandError("list network services", res)
	}

	names := parseSCUtilList(res.Stdout)
	if len(names) == 0 {
		return nil, nil
	}

	ip := s.tunnelAddress(ctx)
	active := make([]connection.ActiveConnection, 0, len(names))
	for _, name := range names {
		active = append(active, connection.ActiveConnection{Name: name, IP: ip})
	}
	return active, nil
}

// StatusOf returns the state scutil reports for name.
func (s *SCUtil) StatusOf(ctx context.Context, name string) connection.Status {
	res, err := s.runner.Run(ctx, "scutil", "--nc", "status", name)
	if err != nil {
		s.logger.Debug("status query failed", "profile", name, "error", err)
		return connection.Disconnected()
	}
	return parseSCUtilStatus(res.Stdout)
}

// Connect runs scutil --nc start, passing the profile's username if set.
func (s *SCUtil) Connect(ctx context.Context, profile connection.Profile) error {
	args := []string{"--nc", "start", profile.Name}
	if profile.Username != "" {
		args = append(args, "--user", profile.Username)
	}

	res, err := s.runner.Run(ctx, "scutil", args...)
	if err != nil {
		return err
	}
	if res.Success() {
		return nil
	}

	combined := res.Stdout + "\n" + res.Stderr
	if strings.Contains(combined, "No service") || strings.Contains(combined, "No such service") {
		return fmt.Errorf("%w found for %q; import the profile into its VPN client (for Azure: open -a 'Azure VPN Client' /path/to/profile.azvpn) under the same name and try again",
			ErrNoService, profile.Name)
	}
	lower := strings.ToLower(combined)
	if strings.Contains(lower, "authentication") || strings.Contains(lower, "login") {
		return fmt.Errorf("%w: check system pop-ups or run: scutil --nc start '%s'", ErrAuthRequired, profile.Name)
	}
	return commandError("connect", res)
}

// Disconnect runs scutil --nc stop.
func (s *SCUtil) Disconnect(ctx context.Context, name string) error {
	res, err := s.runner.Run(ctx, "scutil", "--nc", "stop", name)
	if err != nil {
		return err
	}
	if !res.Success() {
		return commandError("disconnect", res)
	}
	return nil
}

// tunnelAddress returns the first IPv4 address of a utun interface, or ""
// when none is found.
func (s *SCUtil) tunnelAddress(ctx context.Context) string {
	res, err := s.runner.Run(ctx, "ifconfig")
	if err != nil || !res.Success() {
		return ""
	}
	return parseUtunAddress(res.Stdout)
}

func parseSCUtilList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "(Connected)") {
			continue
		}
		parts := strings.Split(line, `"`)
		if len(parts) < 3 || parts[1] == "" {
			continue
		}
		names = append(names, parts[1])
	}
	return names
}

func parseSCUtilStatus(out string) connection.Status {
	first, _, _ := strings.Cut(out, "\n")
	first = strings.TrimSpace(first)

	switch {
	case strings.Contains(first, "Disconnecting"):
		return connection.Disconnecting()
	case strings.Contains(first, "Connecting"):
		return connection.Connecting()
	case strings.Contains(first, "Connected") && !strings.Contains(first, "Disconnected"):
		return connection.Connected()
	default:
		return connection.Disconnected()
	}
}

func parseUtunAddress(out string) string {
	var iface string
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if line[0] != '\t' && line[0] != ' ' {
			iface, _, _ = strings.Cut(line, ":")
			continue
		}
		if !strings.HasPrefix(iface, "utun") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "inet" {
			return fields[1]
		}
	}
	return ""
}

var _ Adapter = (*SCUtil)(nil)
