package connection

import (
	"sort"
	"sync"
	"time"
)

// Store holds the last known Record of every profile.
//
// Implementations must be safe for concurrent use. Writes are exclusive with
// each other and with reads, and every write leaves records consistent:
// ConnectedSince and IPAddress are only set while the status is Connected.
type Store interface {
	// Get returns the record for name, or a Disconnected record if absent.
	Get(name string) Record
	// Set upserts the status of name, preserving its other fields.
	Set(name string, status Status)
	// UpsertAll ensures every name has a record without touching existing ones.
	UpsertAll(names []string)
	// UpdateAll applies fn to every record under a single write lock.
	UpdateAll(fn func(r *Record))
	// Snapshot returns a point-in-time copy of all records sorted by name.
	Snapshot() []Record
}

// MemoryStore is the in-process Store.
type MemoryStore struct {
	records map[string]Record
	now     func() time.Time
	mu      sync.RWMutex
}

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithClock sets the clock used to stamp ConnectedSince.
func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the record for name. Unknown profiles read as Disconnected.
func (s *MemoryStore) Get(name string) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[name]; ok {
		return r
	}
	return NewRecord(name)
}

// Set upserts the status of name.
func (s *MemoryStore) Set(name string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[name]
	if !ok {
		r = NewRecord(name)
	}
	r.Status = status
	s.records[name] = s.normalize(r)
}

// UpsertAll adds a Disconnected record for every name not yet known.
func (s *MemoryStore) UpsertAll(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		if _, ok := s.records[name]; !ok {
			s.records[name] = NewRecord(name)
		}
	}
}

// UpdateAll applies fn to every record atomically.
func (s *MemoryStore) UpdateAll(fn func(r *Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, r := range s.records {
		fn(&r)
		r.ProfileName = name
		s.records[name] = s.normalize(r)
	}
}

// Snapshot returns a copy of all records sorted by profile name.
func (s *MemoryStore) Snapshot() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ProfileName < out[j].ProfileName
	})
	return out
}

// normalize enforces the record invariants. Must be called with mu held.
func (s *MemoryStore) normalize(r Record) Record {
	if r.Status.Is(StateRetrying) {
		r.Status = Connecting()
	}
	if !r.Status.Is(StateConnected) {
		r.Status.Attempt, r.Status.MaxAttempts = 0, 0
		r.ConnectedSince = time.Time{}
		r.IPAddress = ""
		return r
	}
	r.Status = Connected()
	if r.ConnectedSince.IsZero() {
		r.ConnectedSince = s.now()
	}
	return r
}
