package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/remipn/internal/config"
	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/daemon"
	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/version"
)

func newConnectCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "connect <name|alias>",
		Aliases: []string{"c"},
		Short:   "Connect to a VPN profile",
		Long: `Connect to a VPN profile, closing any other active profile first.

The connection is retried up to three times and then watched for a few
seconds to make sure it stays up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			p, err := s.cfg.ResolveProfile(args[0])
			if err != nil {
				return err
			}

			orch := connection.NewOrchestrator(s.manager, app.Options, newProgress(cmd.OutOrStdout()))
			if err := orch.Connect(cmd.Context(), p.ToConnection()); err != nil {
				return fmt.Errorf("failed to connect to %s: %w", p.Name, err)
			}
			return nil
		},
	}
}

func newDisconnectCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "disconnect [name|alias]",
		Aliases: []string{"d"},
		Short:   "Disconnect a VPN profile, or every connected profile",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			orch := connection.NewOrchestrator(s.manager, app.Options, newProgress(cmd.OutOrStdout()))

			if len(args) == 1 {
				p, err := s.cfg.ResolveProfile(args[0])
				if err != nil {
					return err
				}
				if err := orch.Disconnect(cmd.Context(), p.Name); err != nil {
					return fmt.Errorf("disconnection failed for '%s': %w", p.Name, err)
				}
				return nil
			}

			if _, err := s.manager.Refresh(cmd.Context()); err != nil {
				return err
			}
			var failed int
			for _, name := range s.manager.ProfileNames() {
				if s.manager.GetStatus(name).Is(connection.StateDisconnected) {
					continue
				}
				if err := orch.Disconnect(cmd.Context(), name); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error while trying to disconnect from %s: %v\n", name, err)
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d connection(s) could not be disconnected", failed)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All connections disconnected.")
			return nil
		},
	}
}

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "status [name|alias]",
		Aliases: []string{"s"},
		Short:   "Show the status of one profile, or of every connected profile",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			if _, err := s.manager.Refresh(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				p, err := s.cfg.ResolveProfile(args[0])
				if err != nil {
					return err
				}
				printStatus(out, p, s.manager.GetConnection(p.Name))
				return nil
			}

			var shown int
			for _, p := range s.cfg.Profiles {
				rec := s.manager.GetConnection(p.Name)
				if !rec.Status.Is(connection.StateConnected) {
					continue
				}
				printStatus(out, p, rec)
				fmt.Fprintln(out, styles.dim.Render(strings.Repeat("-", 40)))
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(out, styles.warn.Render("No VPN connected."))
			}
			return nil
		},
	}
}

func printStatus(out io.Writer, p config.Profile, rec connection.Record) {
	fmt.Fprintf(out, "Profile: %s | IP: %s | Cat: %s\n",
		styles.name.Render(p.Name), orDash(rec.IPAddress), styles.dim.Render(p.CategoryOrDefault()))
	fmt.Fprintf(out, "Status: %s\n", statusText(rec.Status))
}

func newListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "List all profiles with their status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			if _, err := s.manager.Refresh(cmd.Context()); err != nil {
				return err
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROFILE\tALIAS\tCATEGORY\tSTATUS\tIP\tSINCE")
			for _, p := range s.cfg.Profiles {
				rec := s.manager.GetConnection(p.Name)
				since := "-"
				if !rec.ConnectedSince.IsZero() {
					since = fmt.Sprintf("%dm", int(rec.Uptime(now).Minutes()))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Name,
					orDash(strings.Join(p.AliasList(), ",")),
					p.CategoryOrDefault(),
					rec.Status,
					orDash(rec.IPAddress),
					since,
				)
			}
			return w.Flush()
		},
	}
}

func newActiveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the VPN connections the system reports as active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.session(cmd)
			if err != nil {
				return err
			}
			active, err := s.manager.GetActiveVPNs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(active) == 0 {
				fmt.Fprintln(out, "No active VPN connections.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tIP")
			for _, a := range active {
				fmt.Fprintf(w, "%s\t%s\n", a.Name, orDash(a.IP))
			}
			return w.Flush()
		},
	}
}

func newDaemonCommand(app *App) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run in the foreground, keeping status fresh and serving the REST API",
		Long: `Run remipn as a long-lived process.

The daemon refreshes status every settings.status_check_interval, connects
the first profile marked auto_connect, reconnects dropped profiles when
settings.auto_reconnect is on, and serves the REST API when api.enabled is
set or --listen is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.Enabled = true
				cfg.API.Listen = listen
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			logger := logging.Default()
			sys, err := app.NewSystem(cfg.Settings.Backend, logger)
			if err != nil {
				return err
			}

			d, err := daemon.New(daemon.Config{
				Config:   cfg,
				System:   sys,
				Options:  connection.InteractiveOptions(),
				Conflict: app.Conflict,
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return d.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "serve the REST API on this address (overrides api.listen)")

	return cmd
}

func newConfigCommand(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write an example configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(path); err == nil {
				if !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				backup, err := config.Backup(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Backed up existing configuration to %s\n", backup)
			}

			cfg := config.ExampleConfig()
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "Configuration written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	configCmd.AddCommand(initCmd, pathCmd)
	return configCmd
}

func newValidateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.configPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadAndValidate(path)
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%d profiles)\n", len(cfg.Profiles))
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
