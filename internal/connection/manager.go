package connection

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rennerdo30/remipn/internal/logging"
	"github.com/rennerdo30/remipn/internal/metrics"
)

// Manager is the entry point used by the CLI and the daemon. It wires a
// store, a probe and an actuator into a Controller and a Reconciler.
type Manager struct {
	store      Store
	probe      Probe
	controller *Controller
	reconciler *Reconciler
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.RWMutex
	profiles []Profile
}

// Config holds Manager configuration.
type Config struct {
	Probe    Probe
	Actuator Actuator
	// Store defaults to a new MemoryStore.
	Store    Store
	Conflict ConflictPolicy
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// OnChange is forwarded to the Reconciler.
	OnChange func(connected []string)
}

// New creates a Manager.
func New(cfg Config) *Manager {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := logging.OrDefault(cfg.Logger)

	return &Manager{
		store: store,
		probe: cfg.Probe,
		controller: NewController(ControllerConfig{
			Store:    store,
			Probe:    cfg.Probe,
			Actuator: cfg.Actuator,
			Conflict: cfg.Conflict,
			Metrics:  cfg.Metrics,
			Logger:   logger.With("component", "controller"),
		}),
		reconciler: NewReconciler(ReconcilerConfig{
			Store:    store,
			Probe:    cfg.Probe,
			Metrics:  cfg.Metrics,
			Logger:   logger.With("component", "reconciler"),
			OnChange: cfg.OnChange,
		}),
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// SetProfiles replaces the configured profiles used to seed reconciliation.
func (m *Manager) SetProfiles(profiles []Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = append([]Profile(nil), profiles...)
}

// Profiles returns a copy of the configured profiles.
func (m *Manager) Profiles() []Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Profile(nil), m.profiles...)
}

// ProfileNames returns the names of the configured profiles.
func (m *Manager) ProfileNames() []string {
	return Names(m.Profiles())
}

// GetStatus returns the cached status of name.
func (m *Manager) GetStatus(name string) Status {
	return m.store.Get(name).Status
}

// GetConnection returns the cached record of name.
func (m *Manager) GetConnection(name string) Record {
	return m.store.Get(name)
}

// GetAllConnections returns a snapshot of all cached records.
func (m *Manager) GetAllConnections() []Record {
	return m.store.Snapshot()
}

// GetActiveVPNs queries the system for active connections.
func (m *Manager) GetActiveVPNs(ctx context.Context) ([]ActiveConnection, error) {
	return m.probe.ListActive(ctx)
}

// Connect performs one controller connect.
func (m *Manager) Connect(ctx context.Context, profile Profile) error {
	return m.controller.Connect(ctx, profile)
}

// Disconnect performs one controller disconnect.
func (m *Manager) Disconnect(ctx context.Context, name string) error {
	return m.controller.Disconnect(ctx, name)
}

// RefreshAllStatus runs one reconciliation pass over profiles.
func (m *Manager) RefreshAllStatus(ctx context.Context, profiles []Profile) error {
	_, err := m.reconciler.Reconcile(ctx, Names(profiles))
	return err
}

// Refresh runs one reconciliation pass over the configured profiles and
// returns the active list it observed.
func (m *Manager) Refresh(ctx context.Context) ([]ActiveConnection, error) {
	return m.reconciler.Reconcile(ctx, m.ProfileNames())
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Controller returns the underlying controller.
func (m *Manager) Controller() *Controller { return m.controller }

// Reconciler returns the underlying reconciler.
func (m *Manager) Reconciler() *Reconciler { return m.reconciler }
