package planner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/rollout/internal/core/deployment"
	"github.com/artpar/rollout/internal/core/domain"
	"github.com/artpar/rollout/internal/shell/store"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fake Inventory
// =============================================================================

type fakeInventory struct {
	mu       sync.Mutex
	accepted int
	groups   map[string]int
	filters  map[string]int
	err      error
	gates    map[string]chan struct{}
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		groups:  make(map[string]int),
		filters: make(map[string]int),
		gates:   make(map[string]chan struct{}),
	}
}

// hold blocks queries for key until the returned function is called.
func (f *fakeInventory) hold(key string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[key] = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakeInventory) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeInventory) wait(ctx context.Context, key string) error {
	f.mu.Lock()
	gate := f.gates[key]
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeInventory) AcceptedDevicesCount(ctx context.Context) (int, error) {
	if err := f.wait(ctx, "*"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted, f.err
}

func (f *fakeInventory) GroupDevicesCount(ctx context.Context, group string) (int, error) {
	if err := f.wait(ctx, group); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups[group], f.err
}

func (f *fakeInventory) FilterPreviewCount(ctx context.Context, filterID string) (int, error) {
	if err := f.wait(ctx, filterID); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[filterID], f.err
}

// =============================================================================
// Fake Deployments
// =============================================================================

type fakeDeployments struct {
	mu       sync.Mutex
	requests []deployment.CreateRequest
	ctxErrs  []error
	location string
	err      error
	started  chan struct{}
	release  chan struct{}
}

func newFakeDeployments() *fakeDeployments {
	return &fakeDeployments{location: "/deployments/dep-1"}
}

// block makes the next CreateDeployment calls wait until the returned
// function is called. started is signalled when a call arrives.
func (f *fakeDeployments) block() func() {
	f.mu.Lock()
	f.started = make(chan struct{}, 1)
	f.release = make(chan struct{})
	release := f.release
	f.mu.Unlock()
	return func() { close(release) }
}

func (f *fakeDeployments) CreateDeployment(ctx context.Context, req deployment.CreateRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	started, release := f.started, f.release
	location, err := f.location, f.err
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return "", err
	}
	return location, nil
}

func (f *fakeDeployments) calls() []deployment.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]deployment.CreateRequest(nil), f.requests...)
}

// =============================================================================
// Failing Settings Store
// =============================================================================

type failingUpdateStore struct {
	store.SettingsStore
	err error
}

func (s *failingUpdateStore) UpdateSettings(ctx context.Context, userID string, fn func(*domain.UserSettings) error) (*domain.UserSettings, error) {
	return nil, s.err
}

// =============================================================================
// Fixture
// =============================================================================

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	inventory   *fakeInventory
	deployments *fakeDeployments
	settings    *store.SQLiteStore
	registry    *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	settings, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { settings.Close() })

	f := &fixture{
		inventory:   newFakeInventory(),
		deployments: newFakeDeployments(),
		settings:    settings,
	}
	f.registry = NewRegistry(f.deps())
	t.Cleanup(f.registry.CloseAll)
	return f
}

func (f *fixture) deps() Deps {
	return Deps{
		Inventory:   f.inventory,
		Deployments: f.deployments,
		Settings:    f.settings,
		CanRetry:    true,
		Now:         func() time.Time { return fixedNow },
	}
}

func (f *fixture) session(t *testing.T, userID string) *Session {
	t.Helper()
	s, err := f.registry.Create(context.Background(), userID)
	require.NoError(t, err)
	return s
}
