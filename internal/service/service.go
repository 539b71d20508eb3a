// Package service installs the remipn daemon as a per-user background
// service: a systemd user unit on Linux, a launchd agent on macOS and a
// logon scheduled task on Windows. VPN tools act on the logged-in user's
// session, so nothing is installed system-wide.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/rennerdo30/remipn/internal/platform"
)

// DefaultName is the service name used when Config.Name is empty.
const DefaultName = "remipn"

// Status values reported by Manager.Status.
const (
	StatusNotInstalled = "not installed"
	StatusRunning      = "installed (running)"
	StatusStopped      = "installed (not running)"
)

// Config holds service installation configuration.
type Config struct {
	// Name is the service name (e.g., "remipn")
	Name string
	// Description is a human-readable service description
	Description string
	// BinaryPath is the absolute path to the executable
	BinaryPath string
	// ConfigPath is the absolute path to the config file
	ConfigPath string
	// HomeDir defaults to the current user's home directory.
	HomeDir string
	// GOOS defaults to runtime.GOOS.
	GOOS   string
	Runner platform.Runner
}

// Manager handles service installation and management.
type Manager struct {
	config Config
}

// New creates a new service manager.
func New(cfg Config) (*Manager, error) {
	for _, p := range []*string{&cfg.BinaryPath, &cfg.ConfigPath} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("resolve path: %w", err)
		}
		*p = abs
	}

	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Description == "" {
		cfg.Description = "remipn VPN connection daemon"
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	if cfg.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not find home directory: %w", err)
		}
		cfg.HomeDir = home
	}
	if cfg.Runner == nil {
		cfg.Runner = platform.NewExecRunner(nil)
	}

	return &Manager{config: cfg}, nil
}

// Path returns where the service definition lives. It is empty on
// Windows, where the task scheduler stores it.
func (m *Manager) Path() string {
	switch m.config.GOOS {
	case "linux":
		return filepath.Join(m.config.HomeDir, ".config", "systemd", "user", m.config.Name+".service")
	case "darwin":
		return filepath.Join(m.config.HomeDir, "Library", "LaunchAgents", m.label()+".plist")
	}
	return ""
}

func (m *Manager) label() string {
	return "com." + m.config.Name + ".daemon"
}

// Install writes the service definition and starts the service.
func (m *Manager) Install(ctx context.Context) error {
	if _, err := os.Stat(m.config.BinaryPath); err != nil {
		return fmt.Errorf("binary not found: %s", m.config.BinaryPath)
	}
	if _, err := os.Stat(m.config.ConfigPath); err != nil {
		return fmt.Errorf("config not found: %s", m.config.ConfigPath)
	}

	switch m.config.GOOS {
	case "linux":
		return m.installSystemd(ctx)
	case "darwin":
		return m.installLaunchd(ctx)
	case "windows":
		return m.installTask(ctx)
	default:
		return fmt.Errorf("%w: %s", platform.ErrUnsupportedPlatform, m.config.GOOS)
	}
}

// Uninstall stops the service and removes its definition.
func (m *Manager) Uninstall(ctx context.Context) error {
	switch m.config.GOOS {
	case "linux":
		return m.uninstallSystemd(ctx)
	case "darwin":
		return m.uninstallLaunchd(ctx)
	case "windows":
		return m.uninstallTask(ctx)
	default:
		return fmt.Errorf("%w: %s", platform.ErrUnsupportedPlatform, m.config.GOOS)
	}
}

// Status returns the current service status.
func (m *Manager) Status(ctx context.Context) (string, error) {
	switch m.config.GOOS {
	case "linux":
		return m.statusSystemd(ctx)
	case "darwin":
		return m.statusLaunchd(ctx)
	case "windows":
		return m.statusTask(ctx)
	default:
		return "", fmt.Errorf("%w: %s", platform.ErrUnsupportedPlatform, m.config.GOOS)
	}
}

func (m *Manager) run(ctx context.Context, action, name string, args ...string) error {
	res, err := m.config.Runner.Run(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if !res.Success() {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		return fmt.Errorf("%s: %s", action, msg)
	}
	return nil
}

func (m *Manager) render(name, text string) ([]byte, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	data := struct {
		Config
		Label string
	}{m.config, m.label()}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Manager) writeDefinition(name, text string) error {
	data, err := m.render(name, text)
	if err != nil {
		return err
	}
	path := m.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil { //nolint:gosec // G301: unit directories are world-readable
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil { //nolint:gosec // G306: service definitions carry no secrets
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (m *Manager) removeDefinition() error {
	if err := os.Remove(m.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", m.Path(), err)
	}
	return nil
}

func (m *Manager) installed() bool {
	_, err := os.Stat(m.Path())
	return err == nil
}

// --- Linux (systemd user unit) ---

const systemdTemplate = `[Unit]
Description={{.Description}}
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart="{{.BinaryPath}}" --config "{{.ConfigPath}}" daemon
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

func (m *Manager) installSystemd(ctx context.Context) error {
	if err := m.writeDefinition("systemd", systemdTemplate); err != nil {
		return err
	}
	if err := m.run(ctx, "reload systemd", "systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return m.run(ctx, "enable service", "systemctl", "--user", "enable", "--now", m.config.Name)
}

func (m *Manager) uninstallSystemd(ctx context.Context) error {
	// Not running or not enabled is fine.
	_ = m.run(ctx, "disable service", "systemctl", "--user", "disable", "--now", m.config.Name)

	if err := m.removeDefinition(); err != nil {
		return err
	}
	return m.run(ctx, "reload systemd", "systemctl", "--user", "daemon-reload")
}

func (m *Manager) statusSystemd(ctx context.Context) (string, error) {
	if !m.installed() {
		return StatusNotInstalled, nil
	}
	res, err := m.config.Runner.Run(ctx, "systemctl", "--user", "is-active", m.config.Name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Stdout) == "active" {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// --- macOS (launchd agent) ---

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.BinaryPath}}</string>
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
        <string>daemon</string>
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>

    <key>StandardErrorPath</key>
    <string>{{.HomeDir}}/Library/Logs/{{.Name}}.log</string>
</dict>
</plist>
`

func (m *Manager) installLaunchd(ctx context.Context) error {
	if err := m.writeDefinition("launchd", launchdTemplate); err != nil {
		return err
	}
	return m.run(ctx, "load agent", "launchctl", "load", "-w", m.Path())
}

func (m *Manager) uninstallLaunchd(ctx context.Context) error {
	// Not loaded is fine.
	_ = m.run(ctx, "unload agent", "launchctl", "unload", "-w", m.Path())
	return m.removeDefinition()
}

func (m *Manager) statusLaunchd(ctx context.Context) (string, error) {
	if !m.installed() {
		return StatusNotInstalled, nil
	}
	res, err := m.config.Runner.Run(ctx, "launchctl", "list", m.label())
	if err != nil {
		return "", err
	}
	// A loaded agent reports its PID once running.
	if res.Success() && strings.Contains(res.Stdout, `"PID"`) {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// --- Windows (scheduled task at logon) ---

func (m *Manager) taskCommand() string {
	return fmt.Sprintf(`"%s" --config "%s" daemon`, m.config.BinaryPath, m.config.ConfigPath)
}

func (m *Manager) installTask(ctx context.Context) error {
	if err := m.run(ctx, "create task", "schtasks", "/Create", "/F",
		"/TN", m.config.Name, "/TR", m.taskCommand(), "/SC", "ONLOGON", "/RL", "LIMITED"); err != nil {
		return err
	}
	return m.run(ctx, "start task", "schtasks", "/Run", "/TN", m.config.Name)
}

func (m *Manager) uninstallTask(ctx context.Context) error {
	// Not running is fine.
	_ = m.run(ctx, "stop task", "schtasks", "/End", "/TN", m.config.Name)
	return m.run(ctx, "delete task", "schtasks", "/Delete", "/F", "/TN", m.config.Name)
}

func (m *Manager) statusTask(ctx context.Context) (string, error) {
	res, err := m.config.Runner.Run(ctx, "schtasks", "/Query", "/TN", m.config.Name, "/FO", "LIST")
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return StatusNotInstalled, nil
	}
	if strings.Contains(res.Stdout, "Running") {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}
