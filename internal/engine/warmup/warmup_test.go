package warmup_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vigilproject/vigil/internal/adapters/telemetry"
	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"github.com/vigilproject/vigil/internal/core/ports/mocks"
	"github.com/vigilproject/vigil/internal/engine/bus"
	"github.com/vigilproject/vigil/internal/engine/cache"
	"github.com/vigilproject/vigil/internal/engine/warmup"
	"go.uber.org/mock/gomock"
)

// memStore mirrors the facade's store contract for tests.
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

func warmConfig(t *testing.T) *domain.Config {
	t.Helper()
	graph := domain.NewGraph([]string{"fast", "slow", "broken"})
	require.NoError(t, graph.Validate())
	return &domain.Config{
		Probes: []domain.Probe{
			{Key: "fast", Priority: 1},
			{Key: "slow", Priority: 2},
			{Key: "broken", Priority: 3},
		},
		Graph: graph,
	}
}

func TestOrchestrator_Run_OneFailureDoesNotAbortOthers(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(0), nil).AnyTimes()
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Error(gomock.Any()).AnyTimes()
	logger.EXPECT().Warn(gomock.Any()).Times(1)

	eventBus := bus.New(256, 128)
	store := newMemStore()
	require.NoError(t, store.Put(domain.Entry{Key: "slow", Value: json.RawMessage(`1`), SourceMtime: 0}))

	facade := cache.New(warmConfig(t), store, resolver, eventBus, telemetry.NewNoOpTracer(), logger)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	computables := []ports.Computable{
		ports.ComputeFunc{K: "fast", Fn: func(context.Context) (json.RawMessage, error) {
			return json.RawMessage(`{"ok":true}`), nil
		}},
		ports.ComputeFunc{K: "slow", Fn: func(context.Context) (json.RawMessage, error) {
			t.Error("a valid entry must not be recomputed during warm-up")
			return nil, nil
		}},
		ports.ComputeFunc{K: "broken", Fn: func(context.Context) (json.RawMessage, error) {
			return nil, errors.New("probe exploded")
		}},
	}

	orchestrator := warmup.New(facade, eventBus, logger, 2)
	summary, err := orchestrator.Run(context.Background(), computables)

	require.NoError(t, err)
	assert.Equal(t, []string{"fast"}, summary.Computed)
	assert.Equal(t, []string{"slow"}, summary.AlreadyValid)
	assert.Equal(t, []string{"broken"}, summary.Failed)

	var sawWarming, sawWarm bool
	for {
		select {
		case event := <-sub.C():
			switch event.Type {
			case domain.EventSysWarming:
				sawWarming = true
				assert.False(t, sawWarm, "warming precedes warm")
			case domain.EventSysWarm:
				sawWarm = true
				var got warmup.Summary
				require.NoError(t, json.Unmarshal(event.Payload, &got))
				assert.Equal(t, []string{"broken"}, got.Failed)
			}
		default:
			assert.True(t, sawWarming)
			assert.True(t, sawWarm)
			return
		}
	}
}

func TestOrchestrator_Run_EmptyProbeList(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)

	eventBus := bus.New(16, 8)
	facade := cache.New(warmConfig(t), newMemStore(), resolver, eventBus, telemetry.NewNoOpTracer(), logger)

	orchestrator := warmup.New(facade, eventBus, logger, 2)
	summary, err := orchestrator.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, summary.Computed)
	assert.Empty(t, summary.Failed)
}
