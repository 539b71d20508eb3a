//go:build windows

package platform

import "log/slog"

func newPlatformAdapter(runner Runner, logger *slog.Logger) Adapter {
	return NewRasDial(runner, logger)
}
