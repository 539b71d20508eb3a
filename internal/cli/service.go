package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rennerdo30/remipn/internal/service"
)

func newServiceCommand(app *App) *cobra.Command {
	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Run the daemon as a per-user background service",
	}

	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Install and start the daemon service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Creates the config on first use so the service has one to read.
			if _, err := app.load(cmd); err != nil {
				return err
			}
			mgr, err := app.serviceManager()
			if err != nil {
				return err
			}
			if err := mgr.Install(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path := mgr.Path(); path != "" {
				fmt.Fprintf(out, "Service installed: %s\n", path)
			} else {
				fmt.Fprintln(out, "Service installed")
			}
			return nil
		},
	}

	uninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the daemon service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := app.serviceManager()
			if err != nil {
				return err
			}
			if err := mgr.Uninstall(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Service uninstalled")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := app.serviceManager()
			if err != nil {
				return err
			}
			status, err := mgr.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service: %s\n", status)
			return nil
		},
	}

	serviceCmd.AddCommand(installCmd, uninstallCmd, statusCmd)
	return serviceCmd
}

func (a *App) serviceManager() (*service.Manager, error) {
	cfg := a.Service
	if cfg.BinaryPath == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		cfg.BinaryPath = exe
	}
	path, err := a.configPath()
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = path
	return service.New(cfg)
}
