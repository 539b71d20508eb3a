package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/metrics"
)

// Operation names.
const (
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
)

type opIDKey struct{}

// WithOperationID returns a context whose operations log id as their
// op_id instead of a generated one.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, opIDKey{}, id)
}

func contextOperationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(opIDKey{}).(string)
	return id, ok && id != ""
}

func operationID(ctx context.Context) string {
	if id, ok := contextOperationID(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// Options tunes the orchestrator.
type Options struct {
	// ConnectTimeout and DisconnectTimeout bound one attempt, including the
	// controller call and the status polling that follows it. Each
	// stabilization sample is bounded by ConnectTimeout.
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
	PollInterval      time.Duration
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	RetryDelay time.Duration
	// StabilizeSamples > 0 enables the post-connect stabilization window.
	StabilizeSamples  int
	StabilizeInterval time.Duration
}

// InteractiveOptions are used by the long-running daemon.
func InteractiveOptions() Options {
	return Options{
		ConnectTimeout:    30 * time.Second,
		DisconnectTimeout: 20 * time.Second,
		PollInterval:      time.Second,
		MaxRetries:        2,
		RetryDelay:        2 * time.Second,
	}
}

// OneShotOptions are used by single CLI invocations.
func OneShotOptions() Options {
	return Options{
		ConnectTimeout:    10 * time.Second,
		DisconnectTimeout: 10 * time.Second,
		PollInterval:      500 * time.Millisecond,
		MaxRetries:        2,
		RetryDelay:        500 * time.Millisecond,
		StabilizeSamples:  15,
		StabilizeInterval: 200 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := InteractiveOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.DisconnectTimeout <= 0 {
		o.DisconnectTimeout = d.DisconnectTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.StabilizeSamples > 0 && o.StabilizeInterval <= 0 {
		o.StabilizeInterval = 200 * time.Millisecond
	}
	return o
}

// Orchestrator drives a connect or disconnect to a terminal outcome with a
// per-attempt timeout, bounded retries and, for connects, an optional
// stabilization window.
//
// Only timeouts and generic failures are retried. An Error status observed
// while polling stops the operation: it is a reported condition, not a
// transient non-response.
type Orchestrator struct {
	m        *Manager
	opts     Options
	observer Observer
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator over m. observer may be nil.
func NewOrchestrator(m *Manager, opts Options, observer Observer) *Orchestrator {
	return &Orchestrator{
		m:        m,
		opts:     opts.withDefaults(),
		observer: observer,
		metrics:  m.metrics,
		logger:   m.logger.With("component", "orchestrator"),
	}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Connect brings profile up and waits until the system confirms it.
func (o *Orchestrator) Connect(ctx context.Context, profile Profile) error {
	return o.run(ctx, OpConnect, profile.Name, o.opts.ConnectTimeout, func(attemptCtx, opCtx context.Context) error {
		if err := o.connectAttempt(attemptCtx, profile); err != nil {
			return err
		}
		if o.opts.StabilizeSamples > 0 {
			return o.stabilize(opCtx, profile.Name)
		}
		return nil
	})
}

// Disconnect brings the named profile down and waits until the system
// confirms it.
func (o *Orchestrator) Disconnect(ctx context.Context, name string) error {
	return o.run(ctx, OpDisconnect, name, o.opts.DisconnectTimeout, func(attemptCtx, _ context.Context) error {
		return o.disconnectAttempt(attemptCtx, name)
	})
}

func (o *Orchestrator) run(ctx context.Context, op, name string, timeout time.Duration, attemptFn func(attemptCtx, opCtx context.Context) error) error {
	id := operationID(ctx)
	ctx = WithOperationID(ctx, id)
	logger := logging.FromContext(ctx, o.logger).With("op", op, "profile", name, "op_id", id)
	ctx = logging.WithContext(ctx, logger)

	start := time.Now()
	total := o.opts.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		if attempt > 1 {
			o.emit(Event{Type: EventRetry, Op: op, Profile: name, Attempt: attempt, MaxAttempts: total, Err: lastErr})
			if err := sleepContext(ctx, o.opts.RetryDelay); err != nil {
				return o.finish(op, name, start, err)
			}
		}

		logger.Info("starting attempt", "attempt", attempt, "max_attempts", total)
		o.metrics.RecordAttempt(op)
		o.emit(Event{Type: EventAttempt, Op: op, Profile: name, Attempt: attempt, MaxAttempts: total})

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := attemptFn(attemptCtx, ctx)
		cancel()

		if err == nil {
			logger.Info("operation succeeded", "attempt", attempt, "elapsed", time.Since(start))
			return o.finish(op, name, start, nil)
		}
		if ctx.Err() != nil {
			return o.finish(op, name, start, ctx.Err())
		}

		lastErr = err
		logger.Warn("attempt failed", "attempt", attempt, "max_attempts", total, "error", err)

		if errors.Is(err, ErrErrorStatus) {
			return o.finish(op, name, start, err)
		}
	}

	return o.finish(op, name, start, &AttemptsError{Op: op, Profile: name, Attempts: total, Err: lastErr})
}

func (o *Orchestrator) finish(op, name string, start time.Time, err error) error {
	elapsed := time.Since(start)
	if err == nil {
		o.metrics.RecordOperation(op, metrics.ResultSuccess, elapsed)
		o.emit(Event{Type: EventSucceeded, Op: op, Profile: name})
		return nil
	}

	result := metrics.ResultFailure
	if errors.Is(err, ErrTimeout) {
		result = metrics.ResultTimeout
	}
	o.metrics.RecordOperation(op, result, elapsed)
	o.emit(Event{Type: EventFailed, Op: op, Profile: name, Err: err})
	return err
}

func (o *Orchestrator) connectAttempt(ctx context.Context, profile Profile) error {
	o.reportConflicts(ctx, profile.Name)

	if err := o.await(ctx, profile.Name, func(ctx context.Context) error {
		return o.m.controller.Connect(ctx, profile)
	}); err != nil {
		if errors.Is(err, ErrTimeout) || !o.reached(ctx, profile.Name, StateConnected) {
			return err
		}
		logging.FromContext(ctx, o.logger).Info("connect reported failure but system shows connected", "error", err)
	}

	return o.waitFor(ctx, profile.Name, StateConnected)
}

func (o *Orchestrator) disconnectAttempt(ctx context.Context, name string) error {
	if err := o.await(ctx, name, func(ctx context.Context) error {
		return o.m.controller.Disconnect(ctx, name)
	}); err != nil {
		if errors.Is(err, ErrTimeout) || !o.reached(ctx, name, StateDisconnected) {
			return err
		}
	}
	return o.waitFor(ctx, name, StateDisconnected)
}

type result[T any] struct {
	val T
	err error
}

// bounded runs fn until it returns or ctx expires. External commands do
// not honor ctx, so one that hangs past the deadline is left running; its
// outcome surfaces through a later reconciliation.
func bounded[T any](ctx context.Context, what string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, fmt.Errorf("%w before %s", ErrTimeout, what)
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			return zero, fmt.Errorf("%w waiting for %s: %v", ErrTimeout, what, r.err)
		}
		return r.val, r.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w waiting for %s", ErrTimeout, what)
	}
}

// await runs a controller call for name under the deadline in ctx.
func (o *Orchestrator) await(ctx context.Context, name string, fn func(context.Context) error) error {
	_, err := bounded(ctx, "command on "+name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// refresh reconciles under the deadline in ctx.
func (o *Orchestrator) refresh(ctx context.Context) ([]ActiveConnection, error) {
	return bounded(ctx, "status check", o.m.Refresh)
}

// reached reports whether one reconciliation shows name in state.
func (o *Orchestrator) reached(ctx context.Context, name string, state State) bool {
	if _, err := o.refresh(ctx); err != nil {
		return false
	}
	return o.m.store.Get(name).Status.Is(state)
}

// waitFor polls ground truth until name reaches goal, an Error status is
// observed, or ctx expires.
func (o *Orchestrator) waitFor(ctx context.Context, name string, goal State) error {
	logger := logging.FromContext(ctx, o.logger)

	for {
		if _, err := o.refresh(ctx); err != nil {
			if errors.Is(err, ErrTimeout) {
				return fmt.Errorf("%w (waiting for %s to become %s)", err, name, goal)
			}
			logger.Debug("status refresh failed while waiting", "error", err)
		}

		status := o.m.store.Get(name).Status
		switch {
		case status.Is(goal):
			return nil
		case status.Is(StateError):
			return &StatusError{Profile: name, Message: status.Message}
		}

		t := time.NewTimer(o.opts.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w waiting for %s to become %s (last status %s)", ErrTimeout, name, goal, status)
		case <-t.C:
		}
	}
}

// stabilize watches a fresh connection for the configured window. The
// window as a whole is not bounded by the attempt timeout, but every
// sample is. Any other profile that shows up active is disconnected and
// watching goes on.
func (o *Orchestrator) stabilize(ctx context.Context, name string) error {
	logger := logging.FromContext(ctx, o.logger)
	samples := o.opts.StabilizeSamples

	for i := 1; i <= samples; i++ {
		if err := sleepContext(ctx, o.opts.StabilizeInterval); err != nil {
			return err
		}

		sampleCtx, cancel := context.WithTimeout(ctx, o.opts.ConnectTimeout)
		err := o.stabilizeSample(sampleCtx, name, i)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.metrics.RecordStabilizationFailure()
			return err
		}

		o.emit(Event{Type: EventStabilizing, Op: OpConnect, Profile: name, Sample: i, Samples: samples})
	}

	logger.Info("connection stable", "samples", samples)
	return nil
}

func (o *Orchestrator) stabilizeSample(ctx context.Context, name string, sample int) error {
	logger := logging.FromContext(ctx, o.logger)
	samples := o.opts.StabilizeSamples

	active, err := o.refresh(ctx)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return &StabilizationError{
				Profile: name,
				Reason:  fmt.Sprintf("status check hung at sample %d/%d", sample, samples),
				Err:     err,
			}
		}
		logger.Debug("status refresh failed while stabilizing", "error", err)
	}

	status := o.m.store.Get(name).Status
	if !status.Is(StateConnected) {
		return &StabilizationError{
			Profile: name,
			Reason:  fmt.Sprintf("status %s at sample %d/%d", status, sample, samples),
		}
	}

	for _, a := range active {
		if a.Name == name {
			continue
		}
		logger.Warn("conflicting profile became active during stabilization", "conflict", a.Name)
		o.metrics.RecordIntruderDisconnect()
		o.emit(Event{Type: EventIntruder, Op: OpConnect, Profile: name, Other: a.Name})
		if err := o.await(ctx, a.Name, func(ctx context.Context) error {
			return o.m.controller.Disconnect(ctx, a.Name)
		}); err != nil {
			return &StabilizationError{
				Profile: name,
				Reason:  fmt.Sprintf("conflicting profile %s still active", a.Name),
				Err:     err,
			}
		}
	}
	return nil
}

// reportConflicts tells the observer which profiles the controller is
// about to disconnect.
func (o *Orchestrator) reportConflicts(ctx context.Context, name string) {
	if o.observer == nil {
		return
	}
	active, err := bounded(ctx, "active list", o.m.GetActiveVPNs)
	if err != nil {
		return
	}
	for _, a := range active {
		if a.Name != name {
			o.emit(Event{Type: EventConflict, Op: OpConnect, Profile: name, Other: a.Name})
		}
	}
}

func (o *Orchestrator) emit(e Event) {
	if o.observer != nil {
		o.observer.OnEvent(e)
	}
}
