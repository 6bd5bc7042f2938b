package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vigilproject/vigil/internal/adapters/telemetry"
	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"github.com/vigilproject/vigil/internal/core/ports/mocks"
	"github.com/vigilproject/vigil/internal/engine/bus"
	"github.com/vigilproject/vigil/internal/engine/cache"
	"go.uber.org/mock/gomock"
)

func testConfig(t *testing.T) *domain.Config {
	t.Helper()

	graph := domain.NewGraph([]string{"git", "github", "ci", "project-status"})
	require.NoError(t, graph.AddEdge("git", "github"))
	require.NoError(t, graph.AddEdge("git", "ci"))
	require.NoError(t, graph.MarkAggregates("project-status"))
	require.NoError(t, graph.Validate())

	return &domain.Config{
		Probes: []domain.Probe{
			{Key: "git", Watch: []string{".git/HEAD"}, Group: "vcs"},
			{Key: "github", Watch: []string{".git/refs"}, Group: "vcs"},
			{Key: "ci", Watch: []string{".ci.yaml"}},
			{Key: "project-status"},
		},
		Graph: graph,
	}
}

func computeFunc(key string, value string, err error, count *atomic.Int64) ports.ComputeFunc {
	return ports.ComputeFunc{
		K: key,
		Fn: func(context.Context) (json.RawMessage, error) {
			if count != nil {
				count.Add(1)
			}
			if err != nil {
				return nil, err
			}
			return json.RawMessage(value), nil
		},
	}
}

func drain(sub *bus.Subscriber) []domain.Event {
	var events []domain.Event
	for {
		select {
		case event := <-sub.C():
			events = append(events, event)
		default:
			return events
		}
	}
}

func eventTypes(events []domain.Event) []domain.EventType {
	types := make([]domain.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestCache_Get_MissComputesAndStores(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	eventBus := bus.New(64, 32)
	logger := mocks.NewMockLogger(ctrl)

	resolver.EXPECT().MaxMtime([]string{".git/HEAD"}).Return(int64(100), nil)
	store.EXPECT().Get("git").Return(nil, nil)
	store.EXPECT().Put(gomock.Any()).DoAndReturn(func(entry domain.Entry) error {
		assert.Equal(t, "git", entry.Key)
		assert.Equal(t, int64(100), entry.SourceMtime)
		assert.JSONEq(t, `{"branch":"main"}`, string(entry.Value))
		return nil
	})

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	value, recomputed, err := c.Get(context.Background(), computeFunc("git", `{"branch":"main"}`, nil, nil), false)

	require.NoError(t, err)
	assert.True(t, recomputed)
	assert.JSONEq(t, `{"branch":"main"}`, string(value))

	types := eventTypes(drain(sub))
	assert.Equal(t, []domain.EventType{domain.EventCacheMiss, domain.EventCacheDone}, types)
}

func TestCache_Get_HitSkipsCompute(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	eventBus := bus.New(64, 32)
	logger := mocks.NewMockLogger(ctrl)

	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(100), nil)
	store.EXPECT().Get("git").Return(&domain.Entry{
		Key:         "git",
		Value:       json.RawMessage(`{"branch":"main"}`),
		ComputedAt:  time.Now(),
		SourceMtime: 100,
	}, nil)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	var computed atomic.Int64
	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	value, recomputed, err := c.Get(context.Background(), computeFunc("git", `{}`, nil, &computed), false)

	require.NoError(t, err)
	assert.False(t, recomputed)
	assert.JSONEq(t, `{"branch":"main"}`, string(value))
	assert.Zero(t, computed.Load())

	types := eventTypes(drain(sub))
	assert.Equal(t, []domain.EventType{domain.EventCacheHit}, types)
}

func TestCache_Get_ExpiredEntryRecomputes(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	eventBus := bus.New(64, 32)
	logger := mocks.NewMockLogger(ctrl)

	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(200), nil)
	store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 100}, nil)
	store.EXPECT().Put(gomock.Any()).Return(nil)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	_, recomputed, err := c.Get(context.Background(), computeFunc("git", `1`, nil, nil), false)

	require.NoError(t, err)
	assert.True(t, recomputed)

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCacheMiss, events[0].Type)
	assert.Equal(t, "expired", events[0].Meta["reason"])
}

func TestCache_Get_ForceBypassesValidEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	eventBus := bus.New(64, 32)
	logger := mocks.NewMockLogger(ctrl)

	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(100), nil)
	store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 100}, nil)
	store.EXPECT().Put(gomock.Any()).Return(nil)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	_, recomputed, err := c.Get(context.Background(), computeFunc("git", `1`, nil, nil), true)

	require.NoError(t, err)
	assert.True(t, recomputed)

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, "forced", events[0].Meta["reason"])
}

func TestCache_Get_ComputeErrorKeepsStaleEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	eventBus := bus.New(64, 32)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Error(gomock.Any())

	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(200), nil)
	store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 100}, nil)
	// No Put and no Delete: the stale entry survives the failure.

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	boom := errors.New("probe exploded")
	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	_, _, err := c.Get(context.Background(), computeFunc("git", ``, boom, nil), false)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	events := drain(sub)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventCacheError, events[1].Type)
	assert.Contains(t, events[1].Error, "probe exploded")
}

func TestCache_Get_UnknownKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)

	c := cache.New(testConfig(t), store, resolver, bus.New(4, 4), telemetry.NewNoOpTracer(), logger)
	_, _, err := c.Get(context.Background(), computeFunc("nope", `1`, nil, nil), false)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
}

// memStore is a minimal in-memory EntryStore for concurrency tests where
// gomock call ordering would get in the way.
type memStore struct {
	mu      sync.Mutex
	entries map[string]domain.Entry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]domain.Entry)}
}

func (s *memStore) Get(key string) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *memStore) Put(entry domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memStore) Entries() ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	return entries, nil
}

func TestCache_Get_ConcurrentCallersComputeOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(100), nil).AnyTimes()
	logger := mocks.NewMockLogger(ctrl)

	c := cache.New(testConfig(t), newMemStore(), resolver, bus.New(256, 128), telemetry.NewNoOpTracer(), logger)

	var computed atomic.Int64
	compute := ports.ComputeFunc{
		K: "git",
		Fn: func(context.Context) (json.RawMessage, error) {
			computed.Add(1)
			time.Sleep(20 * time.Millisecond)
			return json.RawMessage(`{"branch":"main"}`), nil
		},
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, _, err := c.Get(context.Background(), compute, false)
			assert.NoError(t, err)
			assert.JSONEq(t, `{"branch":"main"}`, string(value))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), computed.Load(), "the key lock serializes callers onto one computation")
}

func TestCache_InvalidateCascade(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)

	store := newMemStore()
	for _, key := range []string{"git", "github", "ci", "project-status"} {
		require.NoError(t, store.Put(domain.Entry{Key: key, Value: json.RawMessage(`1`)}))
	}

	eventBus := bus.New(64, 32)
	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	busted, err := c.InvalidateCascade("git")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"git", "github", "ci", "project-status"}, busted)

	for _, key := range busted {
		entry, err := store.Get(key)
		require.NoError(t, err)
		assert.Nil(t, entry)
	}

	events := drain(sub)
	assert.Len(t, events, 4)
	for _, event := range events {
		assert.Equal(t, domain.EventCacheBust, event.Type)
	}
}

func TestCache_InvalidateCascade_LeafBustsOnlyAggregates(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)

	store := newMemStore()
	require.NoError(t, store.Put(domain.Entry{Key: "ci", Value: json.RawMessage(`1`)}))
	require.NoError(t, store.Put(domain.Entry{Key: "git", Value: json.RawMessage(`1`)}))

	c := cache.New(testConfig(t), store, resolver, bus.New(64, 32), telemetry.NewNoOpTracer(), logger)
	busted, err := c.InvalidateCascade("ci")

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ci", "project-status"}, busted)

	entry, err := store.Get("git")
	require.NoError(t, err)
	assert.NotNil(t, entry, "unrelated keys survive a cascade")
}

func TestCache_InvalidateGroup_CascadesFromEachMember(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)

	store := newMemStore()
	for _, key := range []string{"git", "github", "ci", "project-status"} {
		require.NoError(t, store.Put(domain.Entry{Key: key, Value: json.RawMessage(`1`)}))
	}

	c := cache.New(testConfig(t), store, resolver, bus.New(64, 32), telemetry.NewNoOpTracer(), logger)

	// "vcs" is {git, github}; ci is reachable from git, so a group bust takes
	// it down too.
	busted, err := c.InvalidateGroup("vcs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"git", "github", "ci", "project-status"}, busted)

	entry, err := store.Get("ci")
	require.NoError(t, err)
	assert.Nil(t, entry, "dependents of group members are busted with them")

	_, err = c.InvalidateGroup("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestCache_InvalidateAll_CoversEveryKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)

	store := newMemStore()
	require.NoError(t, store.Put(domain.Entry{Key: "git", Value: json.RawMessage(`1`)}))

	eventBus := bus.New(64, 32)
	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	busted := c.InvalidateAll()

	// Keys without a stored entry are busted too, so observers see the full
	// sweep.
	assert.Equal(t, []string{"ci", "git", "github", "project-status"}, busted)

	events := drain(sub)
	assert.Len(t, events, 4)
	for _, event := range events {
		assert.Equal(t, domain.EventCacheBust, event.Type)
		assert.Equal(t, true, event.Meta["all"])
	}
}

func TestCache_Invalidate_DeleteFailureStillPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Error(gomock.Any())
	store.EXPECT().Delete("git").Return(errors.New("disk full"))

	eventBus := bus.New(4, 4)
	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	c := cache.New(testConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)
	require.NoError(t, c.Invalidate("git"))

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCacheBust, events[0].Type, "observers learn about the bust even when the delete fails")
}

func TestCache_Snapshot_OmitsStaleEntries(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)

	store := newMemStore()
	require.NoError(t, store.Put(domain.Entry{Key: "git", Value: json.RawMessage(`1`), SourceMtime: 100}))
	require.NoError(t, store.Put(domain.Entry{Key: "ci", Value: json.RawMessage(`2`), SourceMtime: 100}))

	resolver.EXPECT().MaxMtime([]string{".git/HEAD"}).Return(int64(100), nil)
	resolver.EXPECT().MaxMtime([]string{".ci.yaml"}).Return(int64(500), nil)

	c := cache.New(testConfig(t), store, resolver, bus.New(4, 4), telemetry.NewNoOpTracer(), logger)
	snapshot, err := c.Snapshot()

	require.NoError(t, err)
	assert.Contains(t, snapshot, "git")
	assert.NotContains(t, snapshot, "ci", "entries behind their watched paths are omitted")
}
