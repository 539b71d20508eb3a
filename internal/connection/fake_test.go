package connection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rennerdo30/remipn/internal/logging"
)

// fakeSystem is an in-memory control surface. Connect marks a profile
// active, Disconnect removes it, unless sticky is set.
type fakeSystem struct {
	mu sync.Mutex

	active map[string]string
	status map[string]Status

	connectErrs    []error
	disconnectErrs []error
	listErr        error
	// listHook, when set, is called with the 1-based ListActive call count
	// and may override the result with an error.
	listHook func(call int) error

	// sticky keeps profiles active after Disconnect.
	sticky bool
	// connectUp controls whether a successful Connect marks the profile
	// active. Defaults to true via newFakeSystem.
	connectUp bool
	// connectBlock, when set, is waited on by Connect.
	connectBlock chan struct{}
	// listBlock, when set, is waited on by every ListActive call after the
	// first listBlockAfter. The wait ignores ctx like a hung command does.
	listBlock      chan struct{}
	listBlockAfter int

	connectCalls    []string
	disconnectCalls []string
	listCalls       int
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{
		active:    make(map[string]string),
		status:    make(map[string]Status),
		connectUp: true,
	}
}

func (f *fakeSystem) setActive(name, ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[name] = ip
}

func (f *fakeSystem) drop(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, name)
}

func (f *fakeSystem) isActive(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[name]
	return ok
}

func (f *fakeSystem) connects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.connectCalls...)
}

func (f *fakeSystem) disconnects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.disconnectCalls...)
}

func (f *fakeSystem) ListActive(ctx context.Context) ([]ActiveConnection, error) {
	f.mu.Lock()
	f.listCalls++
	if f.listBlock != nil && f.listCalls > f.listBlockAfter {
		block := f.listBlock
		f.mu.Unlock()
		<-block
		return nil, errFake
	}
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listHook != nil {
		if err := f.listHook(f.listCalls); err != nil {
			return nil, err
		}
	}
	out := make([]ActiveConnection, 0, len(f.active))
	for name, ip := range f.active {
		out = append(out, ActiveConnection{Name: name, IP: ip})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeSystem) StatusOf(ctx context.Context, name string) Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.status[name]; ok {
		return s
	}
	if _, ok := f.active[name]; ok {
		return Connected()
	}
	return Disconnected()
}

func (f *fakeSystem) Connect(ctx context.Context, profile Profile) error {
	f.mu.Lock()
	f.connectCalls = append(f.connectCalls, profile.Name)
	block := f.connectBlock
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-time.After(5 * time.Second):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.connectUp {
		f.active[profile.Name] = "10.0.0.5"
	}
	return nil
}

func (f *fakeSystem) Disconnect(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnectCalls = append(f.disconnectCalls, name)
	if len(f.disconnectErrs) > 0 {
		err := f.disconnectErrs[0]
		f.disconnectErrs = f.disconnectErrs[1:]
		if err != nil {
			return err
		}
	}
	if !f.sticky {
		delete(f.active, name)
	}
	return nil
}

var errFake = errors.New("boom")

// fastConflict keeps conflict resolution quick in tests.
var fastConflict = ConflictPolicy{
	Grace:        time.Millisecond,
	PollInterval: time.Millisecond,
	MaxPolls:     5,
}

func newTestManager(sys *fakeSystem, profiles ...string) *Manager {
	m := New(Config{
		Probe:    sys,
		Actuator: sys,
		Conflict: fastConflict,
		Logger:   logging.Discard(),
	})
	ps := make([]Profile, 0, len(profiles))
	for _, name := range profiles {
		ps = append(ps, Profile{Name: name})
	}
	m.SetProfiles(ps)
	return m
}
