// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// snapshotVersion is the persisted document format version. A mismatch
// at load is a soft error: start from empty state.
const snapshotVersion = "1.0"

// snapshotFileName is the snapshot file within the state directory.
const snapshotFileName = "omnisearch-state.json"

// Snapshot is the single persisted document: health, history and
// configuration overrides, rewritten in full on every save.
type Snapshot struct {
	Version                string                    `json:"version"`
	LastUpdated            time.Time                 `json:"last_updated"`
	ProviderHealth         map[string]ProviderHealth `json:"provider_health"`
	PerformanceRecords     []PerformanceRecord       `json:"performance_records"`
	ConfigurationOverrides map[string]interface{}    `json:"configuration_overrides"`
}

// StateStore abstracts where the snapshot bytes live. The file store
// is the default; a Redis store lets replicas share state.
type StateStore interface {
	// Load returns the raw snapshot, or (nil, nil) when none exists.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the snapshot in full.
	Save(ctx context.Context, data []byte) error
}

// FileStore persists the snapshot as one JSON file, written atomically
// via a temp file and rename.
type FileStore struct {
	path string
}

// NewFileStore creates a file store under dir. An empty dir falls back
// to the OS temp directory.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = os.TempDir()
	}
	return &FileStore{path: filepath.Join(dir, snapshotFileName)}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the snapshot file.
func (f *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Save atomically replaces the snapshot file.
func (f *FileStore) Save(_ context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// RedisStore keeps the snapshot under a single Redis key so multiple
// replicas can share orchestration state.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Redis-backed store at addr.
func NewRedisStore(addr, key string) *RedisStore {
	if key == "" {
		key = "omnisearch:state"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    key,
	}
}

// Load fetches the snapshot key.
func (r *RedisStore) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Save overwrites the snapshot key.
func (r *RedisStore) Save(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error { return r.client.Close() }

// StateManager owns the snapshot lifecycle: read once at startup,
// rewritten (throttled, coalesced) on mutation. It is the only writer
// of the store; a pending-write timer is reset on flush.
type StateManager struct {
	mu       sync.Mutex
	store    StateStore
	throttle time.Duration
	clock    Clock

	collect  func() Snapshot
	lastSave time.Time
	pending  *time.Timer

	logger *log.Logger
}

// NewStateManager creates a state manager over the given store.
func NewStateManager(store StateStore, throttle time.Duration, clock Clock) *StateManager {
	return &StateManager{
		store:    store,
		throttle: throttle,
		clock:    clock,
		logger:   log.New(os.Stdout, "[STATE] ", log.LstdFlags),
	}
}

// SetCollector registers the callback that assembles the current
// snapshot at write time.
func (s *StateManager) SetCollector(fn func() Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collect = fn
}

// Load reads and decodes the persisted snapshot. Version mismatch and
// decode failures are soft errors: they are logged and (nil, nil) is
// returned so the caller starts from empty state.
func (s *StateManager) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Printf("snapshot unreadable, starting fresh: %v", err)
		return nil, nil
	}
	if snap.Version != snapshotVersion {
		s.logger.Printf("snapshot version %q does not match %q, starting fresh", snap.Version, snapshotVersion)
		return nil, nil
	}
	return &snap, nil
}

// ScheduleSave requests a snapshot write. Writes closer together than
// the throttle interval coalesce into one deferred write; each new
// request cancels and reschedules the pending one.
func (s *StateManager) ScheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.collect == nil {
		return
	}

	elapsed := s.clock.Now().Sub(s.lastSave)
	if elapsed >= s.throttle {
		s.saveLocked()
		return
	}

	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(s.throttle-elapsed, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.pending = nil
		s.saveLocked()
	})
}

// Flush writes the snapshot immediately, cancelling any pending write.
func (s *StateManager) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.collect != nil {
		s.saveLocked()
	}
}

// saveLocked serializes and writes the full snapshot. Save failures
// are logged and ignored; orchestration continues on in-memory state.
// Caller must hold s.mu.
func (s *StateManager) saveLocked() {
	snap := s.collect()
	snap.Version = snapshotVersion
	snap.LastUpdated = s.clock.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Printf("snapshot marshal failed: %v", err)
		return
	}
	if err := s.store.Save(context.Background(), data); err != nil {
		s.logger.Printf("snapshot save failed: %v", err)
		return
	}
	s.lastSave = s.clock.Now()
}
