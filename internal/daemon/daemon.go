// Package daemon runs remipn as a long-lived process: periodic status
// refresh, a single operation worker fed by the REST API, and the
// auto-connect and auto-reconnect settings.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rennerdo30/remipn/internal/api"
	"github.com/rennerdo30/remipn/internal/config"
	"github.com/rennerdo30/remipn/internal/connection"
	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/metrics"
)

// Config holds daemon configuration.
type Config struct {
	Config *config.Config
	System connection.System
	// Options defaults to connection.InteractiveOptions.
	Options  connection.Options
	Conflict connection.ConflictPolicy
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// Listener overrides api.listen when set.
	Listener net.Listener
}

// Daemon owns the connection manager for the lifetime of the process.
// At most one connect or disconnect runs at a time.
type Daemon struct {
	cfg      *config.Config
	manager  *connection.Manager
	orch     *connection.Orchestrator
	api      *api.API
	metrics  *metrics.Metrics
	logger   *slog.Logger
	listener net.Listener
	now      func() time.Time

	mu       sync.Mutex
	inflight *operation
	// wanted is the profile the daemon last connected. A drop of it
	// triggers auto-reconnect.
	wanted string

	ops   chan operation
	drops chan string
}

type operation struct {
	api.Operation
	status connection.Status
}

// New creates a daemon. The configuration must already be validated.
func New(cfg Config) (*Daemon, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("daemon: config is required")
	}
	if cfg.System == nil {
		return nil, fmt.Errorf("daemon: system is required")
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	opts := cfg.Options
	if opts == (connection.Options{}) {
		opts = connection.InteractiveOptions()
	}
	logger := logging.OrDefault(cfg.Logger)

	d := &Daemon{
		cfg:      cfg.Config,
		metrics:  m,
		logger:   logger.With("component", "daemon"),
		listener: cfg.Listener,
		now:      time.Now,
		ops:      make(chan operation, 1),
		drops:    make(chan string, 1),
	}

	d.manager = connection.New(connection.Config{
		Probe:    cfg.System,
		Actuator: cfg.System,
		Conflict: cfg.Conflict,
		Metrics:  m,
		Logger:   logger,
		OnChange: d.onChange,
	})
	d.manager.SetProfiles(cfg.Config.ConnectionProfiles())
	d.orch = connection.NewOrchestrator(d.manager, opts, d)

	apiCfg := api.Config{
		Service: d,
		Token:   cfg.Config.API.Token,
		Logger:  logger,
	}
	if cfg.Config.Metrics.Enabled {
		apiCfg.MetricsHandler = m.Handler()
		apiCfg.MetricsPath = cfg.Config.Metrics.Path
	}
	d.api = api.New(apiCfg)

	return d, nil
}

// Manager returns the underlying connection manager.
func (d *Daemon) Manager() *connection.Manager { return d.manager }

// Handler returns the REST API handler.
func (d *Daemon) Handler() http.Handler { return d.api.Handler() }

// Run refreshes status once, starts the auto-connect profile, then runs
// until ctx is done or an actor fails.
func (d *Daemon) Run(ctx context.Context) error {
	settings := d.cfg.Settings
	d.logger.Info("daemon starting",
		"profiles", len(d.cfg.Profiles),
		"status_check_interval", settings.StatusCheckInterval.Duration(),
		"auto_reconnect", settings.AutoReconnect,
	)

	listener := d.listener
	if d.cfg.API.Enabled && listener == nil {
		l, err := net.Listen("tcp", d.cfg.API.Listen)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", d.cfg.API.Listen, err)
		}
		listener = l
	}

	if _, err := d.manager.Refresh(ctx); err != nil {
		d.logger.Warn("initial status refresh failed", "error", err)
	}
	d.autoConnect()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.manager.Reconciler().Run(ctx, settings.StatusCheckInterval.Duration(), d.manager.ProfileNames)
		return nil
	})
	g.Go(func() error { return d.runOperations(ctx) })
	g.Go(func() error { return d.runReconnect(ctx) })
	if listener != nil {
		g.Go(func() error { return d.api.Serve(ctx, listener) })
	}

	err := g.Wait()
	d.logger.Info("daemon stopped")
	return err
}

func (d *Daemon) autoConnect() {
	p, ok := d.cfg.AutoConnectProfile()
	if !ok {
		return
	}
	if d.manager.GetStatus(p.Name).Is(connection.StateConnected) {
		d.mu.Lock()
		d.wanted = p.Name
		d.mu.Unlock()
		return
	}
	if _, err := d.start(connection.OpConnect, p.Name); err != nil {
		d.logger.Warn("auto-connect not started", "profile", p.Name, "error", err)
		return
	}
	d.logger.Info("auto-connecting", "profile", p.Name)
}

func (d *Daemon) runOperations(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-d.ops:
			d.execute(ctx, op)
		}
	}
}

func (d *Daemon) execute(ctx context.Context, op operation) {
	ctx = connection.WithOperationID(ctx, op.ID)

	var err error
	switch op.Op {
	case connection.OpConnect:
		var p config.Profile
		p, err = d.cfg.ResolveProfile(op.Profile)
		if err == nil {
			err = d.orch.Connect(ctx, p.ToConnection())
		}
	default:
		err = d.orch.Disconnect(ctx, op.Profile)
	}

	d.mu.Lock()
	d.inflight = nil
	if err == nil && op.Op == connection.OpConnect {
		d.wanted = op.Profile
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Warn("operation failed", "op", op.Op, "profile", op.Profile, "op_id", op.ID, "error", err)
	}
}

// onChange is the reconciler hook. It runs on whichever goroutine
// reconciled and must not block.
func (d *Daemon) onChange(connected []string) {
	if !d.cfg.Settings.AutoReconnect {
		return
	}

	d.mu.Lock()
	name := d.wanted
	if name == "" || d.inflight != nil || slices.Contains(connected, name) {
		d.mu.Unlock()
		return
	}
	d.wanted = ""
	d.mu.Unlock()

	select {
	case d.drops <- name:
	default:
	}
}

func (d *Daemon) runReconnect(ctx context.Context) error {
	delay := d.cfg.Settings.ReconnectDelay.Duration()
	for {
		var name string
		select {
		case <-ctx.Done():
			return nil
		case name = <-d.drops:
		}

		d.logger.Warn("connection dropped", "profile", name, "reconnect_in", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if _, err := d.manager.Refresh(ctx); err != nil {
			d.logger.Warn("status refresh failed", "error", err)
		}
		if d.manager.GetStatus(name).Is(connection.StateConnected) {
			d.mu.Lock()
			d.wanted = name
			d.mu.Unlock()
			continue
		}
		if _, err := d.start(connection.OpConnect, name); err != nil {
			d.logger.Warn("auto-reconnect not started", "profile", name, "error", err)
			continue
		}
		d.logger.Info("auto-reconnecting", "profile", name)
	}
}

// start reserves the single operation slot and hands the operation to
// the worker.
func (d *Daemon) start(op, name string) (api.Operation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inflight != nil {
		return api.Operation{}, fmt.Errorf("%w: %s %s", connection.ErrBusy, d.inflight.Op, d.inflight.Profile)
	}

	status := connection.Connecting()
	if op == connection.OpDisconnect {
		status = connection.Disconnecting()
	}
	o := operation{
		Operation: api.Operation{ID: uuid.NewString(), Op: op, Profile: name},
		status:    status,
	}

	select {
	case d.ops <- o:
	default:
		return api.Operation{}, connection.ErrBusy
	}
	d.inflight = &o
	d.wanted = ""
	return o.Operation, nil
}

// OnEvent tracks the display status of the in-flight operation.
func (d *Daemon) OnEvent(e connection.Event) {
	status, ok := e.Status()
	if !ok {
		if e.Type == connection.EventIntruder {
			d.logger.Warn("disconnecting unexpected connection", "profile", e.Profile, "other", e.Other)
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight != nil && d.inflight.Profile == e.Profile {
		d.inflight.status = status
	}
}

// StartConnect implements api.Service.
func (d *Daemon) StartConnect(key string) (api.Operation, error) {
	p, err := d.cfg.ResolveProfile(key)
	if err != nil {
		return api.Operation{}, err
	}
	return d.start(connection.OpConnect, p.Name)
}

// StartDisconnect implements api.Service.
func (d *Daemon) StartDisconnect(key string) (api.Operation, error) {
	p, err := d.cfg.ResolveProfile(key)
	if err != nil {
		return api.Operation{}, err
	}
	return d.start(connection.OpDisconnect, p.Name)
}

// Connections implements api.Service.
func (d *Daemon) Connections() []api.Connection {
	out := make([]api.Connection, 0, len(d.cfg.Profiles))
	for _, p := range d.cfg.Profiles {
		out = append(out, d.view(p))
	}
	return out
}

// Connection implements api.Service.
func (d *Daemon) Connection(key string) (api.Connection, error) {
	p, err := d.cfg.ResolveProfile(key)
	if err != nil {
		return api.Connection{}, err
	}
	return d.view(p), nil
}

// Active implements api.Service.
func (d *Daemon) Active(ctx context.Context) ([]connection.ActiveConnection, error) {
	return d.manager.GetActiveVPNs(ctx)
}

// Refresh implements api.Service.
func (d *Daemon) Refresh(ctx context.Context) error {
	_, err := d.manager.Refresh(ctx)
	return err
}

func (d *Daemon) view(p config.Profile) api.Connection {
	rec := d.manager.GetConnection(p.Name)
	status := rec.Status

	d.mu.Lock()
	if d.inflight != nil && d.inflight.Profile == p.Name {
		status = d.inflight.status
	}
	d.mu.Unlock()

	c := api.Connection{
		Profile:   p.Name,
		Aliases:   p.AliasList(),
		Category:  p.CategoryOrDefault(),
		Status:    status,
		Display:   status.String(),
		IPAddress: rec.IPAddress,
	}
	if !rec.ConnectedSince.IsZero() {
		since := rec.ConnectedSince
		c.ConnectedSince = &since
		c.UptimeSeconds = int64(rec.Uptime(d.now()).Seconds())
	}
	return c
}
