//go:build linux

package platform

import "log/slog"

func newPlatformAdapter(runner Runner, logger *slog.Logger) Adapter {
	return NewNetworkManager(runner, logger)
}
