//go:build darwin

package platform

import "log/slog"

func newPlatformAdapter(runner Runner, logger *slog.Logger) Adapter {
	return NewSCUtil(runner, logger)
}
