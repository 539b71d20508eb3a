// Package cli provides the remipn command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/remipn/internal/config"
	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/platform"
	"github.com/rennerdo30/remipn/internal/service"
)

// App holds state shared by all commands.
type App struct {
	ConfigPath string
	LogLevel   string

	// NewSystem builds the control surface for settings.backend.
	NewSystem func(backend string, logger *slog.Logger) (connection.System, error)
	// Options tunes the one-shot commands.
	Options  connection.Options
	Conflict connection.ConflictPolicy
	// Service is the base for the service commands; the config path is
	// filled in and the binary defaults to the running executable.
	Service service.Config
}

// NewApp returns an App driving the real system tools.
func NewApp() *App {
	return &App{
		NewSystem: func(backend string, logger *slog.Logger) (connection.System, error) {
			return platform.ForName(backend, nil, logger)
		},
		Options: connection.OneShotOptions(),
	}
}

// NewRootCommand creates the remipn command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "remipn",
		Short: "Remi VPN Manager",
		Long: `remipn connects and disconnects VPN profiles through the operating system's
own VPN tooling (nmcli, scutil or rasdial) while keeping at most one profile
active at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "", "config file path (default $XDG_CONFIG_HOME/remipn/config.yaml)")
	root.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newConnectCommand(app),
		newDisconnectCommand(app),
		newStatusCommand(app),
		newListCommand(app),
		newActiveCommand(app),
		newDaemonCommand(app),
		newServiceCommand(app),
		newConfigCommand(app),
		newValidateCommand(app),
		newVersionCommand(),
	)

	return root
}

func (a *App) configPath() (string, error) {
	if a.ConfigPath != "" {
		return a.ConfigPath, nil
	}
	return config.DefaultPath()
}

// load reads the configuration, creating the example file on first use,
// and applies its logging section.
func (a *App) load(cmd *cobra.Command) (*config.Config, error) {
	path, err := a.configPath()
	if err != nil {
		return nil, err
	}

	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if created {
		fmt.Fprintf(cmd.ErrOrStderr(), "Created example configuration at %s\n", path)
	}

	lc := cfg.EffectiveLogging()
	if a.LogLevel != "" {
		lc.Level = a.LogLevel
	}
	if err := logging.Setup(lc); err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	return cfg, nil
}

type session struct {
	cfg     *config.Config
	manager *connection.Manager
}

func (a *App) session(cmd *cobra.Command) (*session, error) {
	cfg, err := a.load(cmd)
	if err != nil {
		return nil, err
	}

	logger := logging.Default()
	sys, err := a.NewSystem(cfg.Settings.Backend, logger)
	if err != nil {
		return nil, err
	}

	m := connection.New(connection.Config{
		Probe:    sys,
		Actuator: sys,
		Conflict: a.Conflict,
		Logger:   logger,
	})
	m.SetProfiles(cfg.ConnectionProfiles())

	return &session{cfg: cfg, manager: m}, nil
}
