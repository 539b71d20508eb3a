package connection

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/metrics"
)

// ConflictPolicy bounds the wait for a conflicting profile to go down.
type ConflictPolicy struct {
	// Grace is slept once after requesting the disconnect.
	Grace time.Duration
	// PollInterval and MaxPolls bound the per-name status polling.
	PollInterval time.Duration
	MaxPolls     int
}

// DefaultConflictPolicy waits up to 0.8s + 40 x 200ms.
func DefaultConflictPolicy() ConflictPolicy {
	return ConflictPolicy{
		Grace:        800 * time.Millisecond,
		PollInterval: 200 * time.Millisecond,
		MaxPolls:     40,
	}
}

func (p ConflictPolicy) withDefaults() ConflictPolicy {
	d := DefaultConflictPolicy()
	if p == (ConflictPolicy{}) {
		return d
	}
	if p.PollInterval <= 0 {
		p.PollInterval = d.PollInterval
	}
	if p.MaxPolls <= 0 {
		p.MaxPolls = d.MaxPolls
	}
	if p.Grace < 0 {
		p.Grace = 0
	}
	return p
}

// Controller performs single connect/disconnect transitions and keeps the
// store in step with them.
//
//	Disconnected -> Connecting -> Connected | Error
//	Connected -> Disconnecting -> Disconnected | Error
//
// Error ends the current operation only; the next one starts from whatever
// reconciliation last observed.
type Controller struct {
	store    Store
	probe    Probe
	actuator Actuator
	conflict ConflictPolicy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// ControllerConfig holds the collaborators of a Controller.
type ControllerConfig struct {
	Store    Store
	Probe    Probe
	Actuator Actuator
	Conflict ConflictPolicy
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewController creates a Controller.
func NewController(cfg ControllerConfig) *Controller {
	return &Controller{
		store:    cfg.Store,
		probe:    cfg.Probe,
		actuator: cfg.Actuator,
		conflict: cfg.Conflict.withDefaults(),
		metrics:  cfg.Metrics,
		logger:   logging.OrDefault(cfg.Logger),
	}
}

// Connect brings profile up. Every other active profile is disconnected
// and confirmed down first; if one cannot be confirmed the connect is
// aborted with a *ConflictError before any connect command is issued.
func (c *Controller) Connect(ctx context.Context, profile Profile) error {
	logger := c.operationLogger(ctx, profile.Name)

	active, err := c.probe.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active connections: %w", err)
	}

	for _, a := range active {
		if a.Name == profile.Name {
			continue
		}
		if err := c.resolveConflict(ctx, logger, a.Name, profile.Name); err != nil {
			return err
		}
	}

	c.store.Set(profile.Name, Connecting())
	logger.Info("connecting")

	if err := c.actuator.Connect(ctx, profile); err != nil {
		c.store.Set(profile.Name, Failed(err.Error()))
		logger.Warn("connect command failed", "error", err)
		return &ActuatorError{Op: "connect", Profile: profile.Name, Err: err}
	}

	c.store.Set(profile.Name, Connected())
	logger.Info("connect command succeeded")
	return nil
}

// Disconnect brings the named profile down.
func (c *Controller) Disconnect(ctx context.Context, name string) error {
	logger := c.operationLogger(ctx, name)

	c.store.Set(name, Disconnecting())
	logger.Info("disconnecting")

	if err := c.actuator.Disconnect(ctx, name); err != nil {
		c.store.Set(name, Failed(err.Error()))
		logger.Warn("disconnect command failed", "error", err)
		return &ActuatorError{Op: "disconnect", Profile: name, Err: err}
	}

	c.store.Set(name, Disconnected())
	logger.Info("disconnect command succeeded")
	return nil
}

// operationLogger tags the controller's logger with name and the op_id of
// the operation driving it, if any.
func (c *Controller) operationLogger(ctx context.Context, name string) *slog.Logger {
	logger := c.logger.With("profile", name)
	if id, ok := contextOperationID(ctx); ok {
		logger = logger.With("op_id", id)
	}
	return logger
}

// resolveConflict disconnects name and waits until the system reports it
// Disconnected.
func (c *Controller) resolveConflict(ctx context.Context, logger *slog.Logger, name, target string) error {
	logger.Info("disconnecting conflicting profile", "conflict", name)
	c.metrics.RecordConflictDisconnect()

	// A failed request is not fatal on its own; the bounded wait decides.
	var lastErr error
	if err := c.Disconnect(ctx, name); err != nil {
		lastErr = err
	}

	if err := sleepContext(ctx, c.conflict.Grace); err != nil {
		return err
	}

	for i := 0; i < c.conflict.MaxPolls; i++ {
		if c.probe.StatusOf(ctx, name).Is(StateDisconnected) {
			return nil
		}
		if err := sleepContext(ctx, c.conflict.PollInterval); err != nil {
			return err
		}
	}

	logger.Error("conflicting profile still active", "conflict", name)
	return &ConflictError{Profile: name, Target: target, Err: lastErr}
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
