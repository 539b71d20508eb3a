package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/platform"
)

// DefaultCategory is assigned to profiles without a category.
const DefaultCategory = "Uncategorized"

// Config is the remipn configuration file.
type Config struct {
	Profiles []Profile      `yaml:"profiles" json:"profiles"`
	Settings Settings       `yaml:"settings" json:"settings"`
	Logging  logging.Config `yaml:"logging" json:"logging"`
	API      APIConfig      `yaml:"api" json:"api"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// Profile is one configured VPN profile. Name must match the name of the
// connection in the operating system's network configuration.
type Profile struct {
	Name           string `yaml:"name" json:"name"`
	GatewayAddress string `yaml:"gateway_address" json:"gateway_address"`
	Category       string `yaml:"category,omitempty" json:"category,omitempty"`
	CertPath       string `yaml:"cert_path,omitempty" json:"cert_path,omitempty"`
	Username       string `yaml:"username,omitempty" json:"username,omitempty"`
	// Aliases is a comma-separated list of short names.
	Aliases     string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Protocol    string `yaml:"protocol" json:"protocol"` // IKEv2, OpenVPN, WireGuard...
	AutoConnect bool   `yaml:"auto_connect" json:"auto_connect"`
}

// Settings holds behaviour settings.
type Settings struct {
	AutoReconnect       bool     `yaml:"auto_reconnect" json:"auto_reconnect"`
	ReconnectDelay      Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	StatusCheckInterval Duration `yaml:"status_check_interval" json:"status_check_interval"`
	// LogLevel overrides logging.level when set.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Backend selects the system tool: auto, nmcli, scutil or rasdial.
	Backend string `yaml:"backend" json:"backend"`
}

// APIConfig contains the daemon REST API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
	Token   string `yaml:"token,omitempty" json:"-"`
}

// MetricsConfig contains Prometheus endpoint settings. The endpoint is
// served by the API listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// DefaultConfig returns a configuration with defaults and no profiles.
func DefaultConfig() Config {
	return Config{
		Settings: Settings{
			AutoReconnect:       false,
			ReconnectDelay:      Duration(30 * time.Second),
			StatusCheckInterval: Duration(5 * time.Second),
			LogLevel:            "info",
			Backend:             platform.BackendAuto,
		},
		Logging: logging.DefaultConfig(),
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:7390",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ExampleConfig returns DefaultConfig with one example profile. It is
// written when no configuration file exists yet.
func ExampleConfig() Config {
	cfg := DefaultConfig()
	cfg.Profiles = []Profile{{
		Name:           "Azure VPN Example",
		GatewayAddress: "vpn-gateway.azure.com",
		Category:       "prod",
		CertPath:       "/path/to/cert.pem",
		Username:       "user@example.com",
		Aliases:        "example",
		Protocol:       "IKEv2",
	}}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	names := make(map[string]string)
	claim := func(key, owner string) error {
		if prev, ok := names[key]; ok {
			if prev == owner {
				return nil
			}
			return fmt.Errorf("%q used by both profile %q and profile %q", key, prev, owner)
		}
		names[key] = owner
		return nil
	}

	for i, p := range c.Profiles {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("profile %d: name is required", i+1)
		}
		if _, ok := names[p.Name]; ok {
			return fmt.Errorf("duplicate profile name: %s", p.Name)
		}
		if err := claim(p.Name, p.Name); err != nil {
			return err
		}
	}
	for _, p := range c.Profiles {
		for _, alias := range p.AliasList() {
			if err := claim(alias, p.Name); err != nil {
				return fmt.Errorf("alias %w", err)
			}
		}
	}

	if c.Settings.StatusCheckInterval.Duration() <= 0 {
		return fmt.Errorf("settings.status_check_interval must be positive")
	}
	if c.Settings.ReconnectDelay.Duration() < 0 {
		return fmt.Errorf("settings.reconnect_delay must not be negative")
	}
	if c.Settings.LogLevel != "" {
		if _, err := logging.ParseLevel(c.Settings.LogLevel); err != nil {
			return fmt.Errorf("settings.log_level: %w", err)
		}
	}
	switch strings.ToLower(c.Settings.Backend) {
	case "", platform.BackendAuto, platform.BackendNMCLI, platform.BackendSCUtil, platform.BackendRasDial:
	default:
		return fmt.Errorf("settings.backend must be one of auto, nmcli, scutil, rasdial, got: %s", c.Settings.Backend)
	}

	if c.API.Enabled {
		if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
			return fmt.Errorf("api listen address must be in host:port format (e.g., '127.0.0.1:7390'): %w", err)
		}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with '/', got: %q", c.Metrics.Path)
	}

	return nil
}

// EffectiveLogging returns the logging configuration with
// settings.log_level applied.
func (c *Config) EffectiveLogging() logging.Config {
	l := c.Logging
	if c.Settings.LogLevel != "" {
		l.Level = c.Settings.LogLevel
	}
	return l
}

// ResolveProfile finds a profile by name or alias.
func (c *Config) ResolveProfile(key string) (Profile, error) {
	key = strings.TrimSpace(key)
	for _, p := range c.Profiles {
		if p.Name == key {
			return p, nil
		}
	}
	for _, p := range c.Profiles {
		for _, alias := range p.AliasList() {
			if alias == key {
				return p, nil
			}
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", connection.ErrProfileNotFound, key)
}

// ConnectionProfiles converts all profiles for the connection manager.
func (c *Config) ConnectionProfiles() []connection.Profile {
	out := make([]connection.Profile, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		out = append(out, p.ToConnection())
	}
	return out
}

// AutoConnectProfile returns the first profile flagged auto_connect.
func (c *Config) AutoConnectProfile() (Profile, bool) {
	for _, p := range c.Profiles {
		if p.AutoConnect {
			return p, true
		}
	}
	return Profile{}, false
}

// AliasList splits Aliases on commas, dropping empty entries.
func (p Profile) AliasList() []string {
	var out []string
	for _, a := range strings.Split(p.Aliases, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// CategoryOrDefault returns the category, or DefaultCategory when unset.
func (p Profile) CategoryOrDefault() string {
	if p.Category == "" {
		return DefaultCategory
	}
	return p.Category
}

// ToConnection converts the profile for the connection manager.
func (p Profile) ToConnection() connection.Profile {
	return connection.Profile{
		Name:           p.Name,
		GatewayAddress: p.GatewayAddress,
		Category:       p.CategoryOrDefault(),
		CertPath:       p.CertPath,
		Username:       p.Username,
		Aliases:        p.Aliases,
		Protocol:       p.Protocol,
		AutoConnect:    p.AutoConnect,
	}
}
