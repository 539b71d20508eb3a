package platform

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
)

// NetworkManager controls connections through nmcli.
type NetworkManager struct {
	runner Runner
	logger *slog.Logger
}

// NewNetworkManager creates a NetworkManager adapter.
func NewNetworkManager(runner Runner, logger *slog.Logger) *NetworkManager {
	return &NetworkManager{
		runner: runner,
		logger: logging.OrDefault(logger).With("backend", BackendNMCLI),
	}
}

// Name returns "nmcli".
func (n *NetworkManager) Name() string { return BackendNMCLI }

// ListActive returns the active VPN and WireGuard connections.
func (n *NetworkManager) ListActive(ctx context.Context) ([]connection.ActiveConnection, error) {
	res, err := n.runner.Run(ctx, "nmcli", "-t", "-f", "NAME,TYPE,STATE,IP4.ADDRESS", "connection", "show", "--active")
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, commandError("list active connections", res)
	}
	return parseNMCLIActive(res.Stdout), nil
}

// StatusOf returns the state nmcli reports for name.
func (n *NetworkManager) StatusOf(ctx context.Context, name string) connection.Status {
	res, err := n.runner.Run(ctx, "nmcli", "-t", "-f", "NAME,STATE", "connection", "show", "--active")
	if err != nil || !res.Success() {
		n.logger.Debug("status query failed", "profile", name, "error", err, "exit_code", res.ExitCode)
		return connection.Disconnected()
	}
	return parseNMCLIStatus(res.Stdout, name)
}

// Connect runs nmcli connection up.
func (n *NetworkManager) Connect(ctx context.Context, profile connection.Profile) error {
	res, err := n.runner.Run(ctx, "nmcli", "connection", "up", profile.Name)
	if err != nil {
		return err
	}
	if !res.Success() {
		return commandError("connect", res)
	}
	return nil
}

// Disconnect runs nmcli connection down.
func (n *NetworkManager) Disconnect(ctx context.Context, name string) error {
	res, err := n.runner.Run(ctx, "nmcli", "connection", "down", name)
	if err != nil {
		return err
	}
	if !res.Success() {
		return commandError("disconnect", res)
	}
	return nil
}

func parseNMCLIActive(out string) []connection.ActiveConnection {
	var active []connection.ActiveConnection
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(strings.TrimRight(line, "\r"))
		if len(fields) < 3 || fields[0] == "" {
			continue
		}
		typ := strings.ToLower(fields[1])
		if !strings.Contains(typ, "vpn") && !strings.Contains(typ, "wireguard") {
			continue
		}
		ac := connection.ActiveConnection{Name: fields[0]}
		if len(fields) > 3 {
			ac.IP = firstAddress(fields[3])
		}
		active = append(active, ac)
	}
	return active
}

func parseNMCLIStatus(out, name string) connection.Status {
	for _, line := range strings.Split(out, "\n") {
		fields := splitTerse(strings.TrimRight(line, "\r"))
		if len(fields) < 2 || fields[0] != name {
			continue
		}
		switch state := strings.ToLower(fields[1]); {
		case strings.Contains(state, "deactivating"):
			return connection.Disconnecting()
		case strings.Contains(state, "deactivated"):
			return connection.Disconnected()
		case strings.Contains(state, "activating"):
			return connection.Connecting()
		case strings.Contains(state, "activated"):
			return connection.Connected()
		}
	}
	return connection.Disconnected()
}

// splitTerse splits one line of nmcli terse output. Colons and
// backslashes inside values are escaped with a backslash.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

// firstAddress returns the first address of an nmcli address list without
// its prefix length.
func firstAddress(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "|"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return s
}

var _ Adapter = (*NetworkManager)(nil)
