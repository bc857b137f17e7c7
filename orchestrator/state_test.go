// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore counts saves for throttle assertions.
type memStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (m *memStore) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *memStore) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func testSnapshot(clock Clock) Snapshot {
	now := clock.Now()
	return Snapshot{
		ProviderHealth: map[string]ProviderHealth{
			"tavily": {Available: true, LastSuccess: &now},
			"brave":  {Available: false, FailureCount: 3},
		},
		PerformanceRecords: []PerformanceRecord{
			record("tavily", QueryTypeFactual, true, 120, now),
		},
		ConfigurationOverrides: map[string]interface{}{
			"mode":             "unified",
			"fallback_enabled": true,
		},
	}
}

func TestStateManager_SaveLoadRoundTrip(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{}
	mgr := NewStateManager(store, 0, clock)
	snap := testSnapshot(clock)
	mgr.SetCollector(func() Snapshot { return snap })

	mgr.ScheduleSave()
	require.Equal(t, 1, store.saveCount())

	loaded, err := mgr.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, snapshotVersion, loaded.Version)
	assert.Equal(t, clock.Now(), loaded.LastUpdated)
	assert.Equal(t, 3, loaded.ProviderHealth["brave"].FailureCount)
	require.Len(t, loaded.PerformanceRecords, 1)
	assert.Equal(t, "tavily", loaded.PerformanceRecords[0].Provider)
	assert.Equal(t, true, loaded.ConfigurationOverrides["fallback_enabled"])
}

func TestStateManager_LoadMissingSnapshot(t *testing.T) {
	mgr := NewStateManager(&memStore{}, 0, newFakeClock())

	snap, err := mgr.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStateManager_VersionMismatchStartsFresh(t *testing.T) {
	store := &memStore{}
	stale, err := json.Marshal(Snapshot{Version: "0.9"})
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), stale))

	mgr := NewStateManager(store, 0, newFakeClock())
	snap, err := mgr.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStateManager_CorruptSnapshotStartsFresh(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Save(context.Background(), []byte("{not json")))

	mgr := NewStateManager(store, 0, newFakeClock())
	snap, err := mgr.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStateManager_ThrottleCoalescesWrites(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{}
	mgr := NewStateManager(store, time.Hour, clock)
	mgr.SetCollector(func() Snapshot { return Snapshot{} })

	// First request writes immediately (nothing saved yet).
	mgr.ScheduleSave()
	require.Equal(t, 1, store.saveCount())

	// Rapid follow-ups inside the throttle window coalesce into one
	// pending write.
	for i := 0; i < 20; i++ {
		mgr.ScheduleSave()
	}
	assert.Equal(t, 1, store.saveCount())

	// Flush forces the pending write out.
	mgr.Flush()
	assert.Equal(t, 2, store.saveCount())
}

func TestStateManager_SaveAfterThrottleElapsed(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{}
	mgr := NewStateManager(store, 5*time.Second, clock)
	mgr.SetCollector(func() Snapshot { return Snapshot{} })

	mgr.ScheduleSave()
	require.Equal(t, 1, store.saveCount())

	clock.Advance(6 * time.Second)
	mgr.ScheduleSave()
	assert.Equal(t, 2, store.saveCount())
}

func TestStateManager_NoCollectorNoWrite(t *testing.T) {
	store := &memStore{}
	mgr := NewStateManager(store, 0, newFakeClock())

	mgr.ScheduleSave()
	mgr.Flush()
	assert.Zero(t, store.saveCount())
}

func TestFileStore_RoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())

	missing, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, missing)

	payload := []byte(`{"version":"1.0"}`)
	require.NoError(t, store.Save(context.Background(), payload))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)

	// Overwrite replaces in full.
	next := []byte(`{"version":"1.0","last_updated":"2025-06-01T00:00:00Z"}`)
	require.NoError(t, store.Save(context.Background(), next))
	loaded, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, next, loaded)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	store := NewRedisStore(srv.Addr(), "")
	defer store.Close()

	ctx := context.Background()

	missing, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, missing)

	payload := []byte(`{"version":"1.0"}`)
	require.NoError(t, store.Save(ctx, payload))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)
}

func TestOrchestrator_StateRestoreWiring(t *testing.T) {
	clock := newFakeClock()
	store := &memStore{}

	// First orchestrator takes traffic and persists on mutation.
	build := func() (*Orchestrator, *HealthManager, *PerformanceTracker) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(succeeding("tavily"), CategorySearch))
		health := NewHealthManager(clock, 5, time.Minute)
		tracker := NewPerformanceTracker(clock, 100)
		orch := NewOrchestrator(OrchestratorDeps{
			Registry: registry,
			Health:   health,
			Tracker:  tracker,
			Config:   NewConfig(),
			State:    NewStateManager(store, 0, clock),
			Clock:    clock,
		})
		return orch, health, tracker
	}

	first, health, _ := build()
	health.RecordFailure("tavily", NewSearchError("tavily", ErrRateLimit, "429"))
	res := first.UnifiedSearch(context.Background(), SearchParams{Query: "persisted"})
	require.False(t, res.Success)
	require.Positive(t, store.saveCount())

	// Second orchestrator restores and sees the same health state.
	second, health2, tracker2 := build()
	require.NoError(t, second.RestoreFromState(context.Background()))

	assert.False(t, health2.IsAvailable("tavily"))
	assert.Empty(t, tracker2.History())
}
