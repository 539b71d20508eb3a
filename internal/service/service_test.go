package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rennerdo30/remipn/internal/platform"
)

type fakeRunner struct {
	calls   []string
	results map[string]platform.Result
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (platform.Result, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, line)
	if res, ok := f.results[line]; ok {
		return res, nil
	}
	return platform.Result{}, nil
}

func newTestManager(t *testing.T, goos string) (*Manager, *fakeRunner, string) {
	t.Helper()
	tmpDir := t.TempDir()
	binaryPath := filepath.Join(tmpDir, "remipn")
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(binaryPath, []byte("binary"), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte("profiles: []"), 0644))

	runner := &fakeRunner{results: make(map[string]platform.Result)}
	mgr, err := New(Config{
		BinaryPath: binaryPath,
		ConfigPath: configPath,
		HomeDir:    filepath.Join(tmpDir, "home"),
		GOOS:       goos,
		Runner:     runner,
	})
	require.NoError(t, err)
	return mgr, runner, tmpDir
}

func TestNew_Defaults(t *testing.T) {
	mgr, _, _ := newTestManager(t, "linux")
	assert.Equal(t, DefaultName, mgr.config.Name)
	assert.Equal(t, "remipn VPN connection daemon", mgr.config.Description)
}

func TestNew_RelativePaths(t *testing.T) {
	mgr, err := New(Config{BinaryPath: "remipn", ConfigPath: "config.yaml", HomeDir: t.TempDir()})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(mgr.config.BinaryPath))
	assert.True(t, filepath.IsAbs(mgr.config.ConfigPath))
}

func TestInstall_MissingFiles(t *testing.T) {
	mgr, _, tmpDir := newTestManager(t, "linux")

	mgr.config.BinaryPath = filepath.Join(tmpDir, "nonexistent")
	err := mgr.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary not found")

	mgr.config.BinaryPath = filepath.Join(tmpDir, "remipn")
	mgr.config.ConfigPath = filepath.Join(tmpDir, "nonexistent.yaml")
	err = mgr.Install(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config not found")
}

func TestSystemd(t *testing.T) {
	ctx := context.Background()
	mgr, runner, tmpDir := newTestManager(t, "linux")

	status, err := mgr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNotInstalled, status)

	require.NoError(t, mgr.Install(ctx))
	assert.Equal(t, filepath.Join(tmpDir, "home", ".config", "systemd", "user", "remipn.service"), mgr.Path())

	unit, err := os.ReadFile(mgr.Path())
	require.NoError(t, err)
	assert.Contains(t, string(unit), `ExecStart="`+filepath.Join(tmpDir, "remipn")+`" --config "`+filepath.Join(tmpDir, "config.yaml")+`" daemon`)
	assert.Contains(t, string(unit), "WantedBy=default.target")
	assert.Equal(t, []string{
		"systemctl --user daemon-reload",
		"systemctl --user enable --now remipn",
	}, runner.calls)

	runner.results["systemctl --user is-active remipn"] = platform.Result{Stdout: "active\n"}
	status, err = mgr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)

	runner.results["systemctl --user is-active remipn"] = platform.Result{Stdout: "inactive\n", ExitCode: 3}
	status, err = mgr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, status)

	require.NoError(t, mgr.Uninstall(ctx))
	assert.NoFileExists(t, mgr.Path())
}

func TestSystemd_CommandFailure(t *testing.T) {
	mgr, runner, _ := newTestManager(t, "linux")
	runner.results["systemctl --user daemon-reload"] = platform.Result{Stderr: "Failed to connect to bus", ExitCode: 1}

	err := mgr.Install(context.Background())
	require.Error(t, err)
	assert.Equal(t, "reload systemd: Failed to connect to bus", err.Error())
}

func TestLaunchd(t *testing.T) {
	ctx := context.Background()
	mgr, runner, tmpDir := newTestManager(t, "darwin")

	require.NoError(t, mgr.Install(ctx))
	assert.Equal(t, filepath.Join(tmpDir, "home", "Library", "LaunchAgents", "com.remipn.daemon.plist"), mgr.Path())

	plist, err := os.ReadFile(mgr.Path())
	require.NoError(t, err)
	assert.Contains(t, string(plist), "<string>com.remipn.daemon</string>")
	assert.Contains(t, string(plist), "<string>daemon</string>")
	assert.Equal(t, []string{"launchctl load -w " + mgr.Path()}, runner.calls)

	runner.results["launchctl list com.remipn.daemon"] = platform.Result{Stdout: "{\n\t\"PID\" = 4242;\n}"}
	status, err := mgr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)

	require.NoError(t, mgr.Uninstall(ctx))
	assert.NoFileExists(t, mgr.Path())
}

func TestScheduledTask(t *testing.T) {
	ctx := context.Background()
	mgr, runner, tmpDir := newTestManager(t, "windows")
	assert.Empty(t, mgr.Path())

	runner.results["schtasks /Query /TN remipn /FO LIST"] = platform.Result{Stderr: "ERROR: The system cannot find the file specified.", ExitCode: 1}
	status, err := mgr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusNotInstalled, status)

	require.NoError(t, mgr.Install(ctx))
	cmdline := `"` + filepath.Join(tmpDir, "remipn") + `" --config "` + filepath.Join(tmpDir, "config.yaml") + `" daemon`
	assert.Equal(t, "schtasks /Create /F /TN remipn /TR "+cmdline+" /SC ONLOGON /RL LIMITED", runner.calls[1])
	assert.Equal(t, "schtasks /Run /TN remipn", runner.calls[2])

	runner.results["schtasks /Query /TN remipn /FO LIST"] = platform.Result{Stdout: "TaskName: \\remipn\nStatus: Running\n"}
	status, err = mgr.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status)
}

func TestUnsupportedPlatform(t *testing.T) {
	mgr, _, _ := newTestManager(t, "plan9")
	assert.ErrorIs(t, mgr.Install(context.Background()), platform.ErrUnsupportedPlatform)
	assert.ErrorIs(t, mgr.Uninstall(context.Background()), platform.ErrUnsupportedPlatform)
	_, err := mgr.Status(context.Background())
	assert.ErrorIs(t, err, platform.ErrUnsupportedPlatform)
}
