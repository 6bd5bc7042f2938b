package staleness_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports/mocks"
	"github.com/vigilproject/vigil/internal/engine/bus"
	"github.com/vigilproject/vigil/internal/engine/staleness"
	"go.uber.org/mock/gomock"
)

func watcherConfig() *domain.Config {
	return &domain.Config{
		Probes: []domain.Probe{
			{Key: "git", Watch: []string{".git/HEAD"}},
		},
	}
}

func staleEvents(sub *bus.Subscriber) []domain.Event {
	var events []domain.Event
	for {
		select {
		case event := <-sub.C():
			if event.Type == domain.EventStateStale {
				events = append(events, event)
			}
		default:
			return events
		}
	}
}

func TestWatcher_CheckAll_PublishesOnDivergence(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	eventBus := bus.New(64, 32)

	src := int64(100 * time.Second)
	obs := int64(200 * time.Second)
	store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: src}, nil)
	resolver.EXPECT().MaxMtime([]string{".git/HEAD"}).Return(obs, nil)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	w := staleness.New(watcherConfig(), store, resolver, eventBus, logger)
	w.CheckAll()

	events := staleEvents(sub)
	require.Len(t, events, 1)
	assert.Equal(t, "git", events[0].Key)
	assert.EqualValues(t, src, events[0].Meta["sourceMtime"])
	assert.EqualValues(t, obs, events[0].Meta["observedMtime"])
	assert.InDelta(t, 100.0, events[0].Meta["delta"], 1e-9, "delta is how many seconds the sources moved past the entry")
}

func TestWatcher_CheckAll_SignalsOncePerDivergence(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	eventBus := bus.New(64, 32)

	store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 100}, nil).Times(3)
	gomock.InOrder(
		resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(200), nil),
		resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(200), nil),
		resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(300), nil),
	)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	w := staleness.New(watcherConfig(), store, resolver, eventBus, logger)
	w.CheckAll()
	w.CheckAll() // unchanged divergence stays silent
	w.CheckAll() // a newer mtime signals again

	events := staleEvents(sub)
	require.Len(t, events, 2)
	assert.EqualValues(t, 200, events[0].Meta["observedMtime"])
	assert.EqualValues(t, 300, events[1].Meta["observedMtime"])
}

func TestWatcher_CheckAll_ValidEntryStaysSilent(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	eventBus := bus.New(64, 32)

	store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 100}, nil)
	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(100), nil)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	w := staleness.New(watcherConfig(), store, resolver, eventBus, logger)
	w.CheckAll()

	assert.Empty(t, staleEvents(sub))
}

func TestWatcher_CheckAll_MissingEntryStaysSilent(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	eventBus := bus.New(64, 32)

	store.EXPECT().Get("git").Return(nil, nil)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	w := staleness.New(watcherConfig(), store, resolver, eventBus, logger)
	w.CheckAll()

	assert.Empty(t, staleEvents(sub))
}

func TestWatcher_ReSignalsAfterRecovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockEntryStore(ctrl)
	resolver := mocks.NewMockWatchResolver(ctrl)
	logger := mocks.NewMockLogger(ctrl)
	eventBus := bus.New(64, 32)

	// The entry is recomputed between checks, then diverges at the same
	// observed mtime again. Recovery clears the dedupe state.
	gomock.InOrder(
		store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 100}, nil),
		store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 200}, nil),
		store.EXPECT().Get("git").Return(&domain.Entry{Key: "git", SourceMtime: 100}, nil),
	)
	resolver.EXPECT().MaxMtime(gomock.Any()).Return(int64(200), nil).Times(3)

	sub, _, _ := eventBus.Subscribe(0)
	defer sub.Close()

	w := staleness.New(watcherConfig(), store, resolver, eventBus, logger)
	w.CheckAll()
	w.CheckAll()
	w.CheckAll()

	events := staleEvents(sub)
	require.Len(t, events, 2)
}
