package connection

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/metrics"
)

// Reconciler overwrites cached state with what the system reports. It is
// the only way externally initiated changes (a drop, a disconnect from the
// OS UI) become visible.
//
// Reconcile may race with Controller writes; the most recent write wins.
type Reconciler struct {
	store    Store
	probe    Probe
	metrics  *metrics.Metrics
	logger   *slog.Logger
	onChange func(connected []string)

	mu            sync.Mutex
	lastConnected []string
	observed      bool
}

// ReconcilerConfig holds the collaborators of a Reconciler.
type ReconcilerConfig struct {
	Store   Store
	Probe   Probe
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// OnChange is called after a pass that changed the set of connected
	// profiles. It must not block.
	OnChange func(connected []string)
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		store:    cfg.Store,
		probe:    cfg.Probe,
		metrics:  cfg.Metrics,
		logger:   logging.OrDefault(cfg.Logger),
		onChange: cfg.OnChange,
	}
}

// Reconcile runs one pass: every name in names gets a record, profiles the
// system lists as active become Connected with the reported IP, and every
// other record becomes Disconnected. An Error status is overridden too.
//
// The active list is returned so callers need not probe again. A failure
// to query the system leaves the store untouched.
func (r *Reconciler) Reconcile(ctx context.Context, names []string) ([]ActiveConnection, error) {
	start := time.Now()
	active, err := r.probe.ListActive(ctx)
	r.metrics.RecordReconcile(err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("list active connections: %w", err)
	}

	ips := make(map[string]string, len(active))
	for _, a := range active {
		if ip, seen := ips[a.Name]; seen && ip != "" {
			continue
		}
		ips[a.Name] = a.IP
	}

	r.store.UpsertAll(names)

	var connected []string
	r.store.UpdateAll(func(rec *Record) {
		ip, ok := ips[rec.ProfileName]
		if !ok {
			rec.Status = Disconnected()
			return
		}
		// Keeping ConnectedSince when already connected preserves the
		// duration clock across passes.
		rec.Status = Connected()
		rec.IPAddress = ip
		connected = append(connected, rec.ProfileName)
	})
	slices.Sort(connected)

	for _, rec := range r.store.Snapshot() {
		r.metrics.SetConnectionUp(rec.ProfileName, rec.Status.Is(StateConnected))
	}

	r.notify(connected)
	return active, nil
}

// Run reconciles immediately and then every interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, names func() []string) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	r.tick(ctx, names)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, names)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context, names func() []string) {
	if _, err := r.Reconcile(ctx, names()); err != nil {
		r.logger.Warn("status refresh failed", "error", err)
	}
}

func (r *Reconciler) notify(connected []string) {
	r.mu.Lock()
	changed := !r.observed || !slices.Equal(r.lastConnected, connected)
	r.lastConnected = connected
	r.observed = true
	r.mu.Unlock()

	if !changed {
		return
	}
	r.logger.Debug("connected profiles changed", "connected", connected)
	if r.onChange != nil {
		r.onChange(connected)
	}
}
