//go:build !linux && !darwin && !windows

package platform

import "log/slog"

func newPlatformAdapter(_ Runner, logger *slog.Logger) Adapter {
	logger.Warn("no VPN backend for this platform")
	return Unsupported{}
}
