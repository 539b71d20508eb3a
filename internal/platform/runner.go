package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rennerdo30/remipn/internal/logging"
)

// Result is the outcome of one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner runs external commands. An error means the command could not be
// run at all; a non-zero exit is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
//
// Commands are not tied to ctx and always run to completion. Callers that
// need a deadline bound their wait instead.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logging.OrDefault(logger).With("component", "runner")}
}

// Run executes name with args and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	logger := logging.FromContext(ctx, r.logger)

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(name, args...) //nolint:gosec // G204: VPN control requires invoking system tools
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		logger.Debug("command failed to run", "command", name, "args", strings.Join(args, " "), "error", err)
		return res, fmt.Errorf("run %s: %w", name, err)
	}

	logger.Debug("command finished",
		"command", name,
		"args", strings.Join(args, " "),
		"exit_code", res.ExitCode,
		"duration", time.Since(start),
	)
	return res, nil
}
