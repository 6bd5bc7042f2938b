package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vigilproject/vigil/internal/core/domain"
)

func TestEventOptions(t *testing.T) {
	event := domain.Event{Type: domain.EventCacheError, Key: "ci"}

	domain.WithMeta(map[string]any{"reason": "expired"})(&event)
	domain.WithError(errors.New("probe exploded"))(&event)
	domain.WithDuration(1500 * time.Millisecond)(&event)

	assert.Equal(t, "expired", event.Meta["reason"])
	assert.Equal(t, "probe exploded", event.Error)
	assert.InDelta(t, 1.5, event.DurationSeconds, 0.0001)
}

func TestWithError_Nil(t *testing.T) {
	event := domain.Event{}
	domain.WithError(nil)(&event)
	assert.Empty(t, event.Error)
}

func TestEvent_JSONOmitsEmptyFields(t *testing.T) {
	event := domain.Event{
		SchemaVersion: domain.EventSchemaVersion,
		Timestamp:     domain.EventTimestamp(time.Unix(1700000000, 0)),
		Sequence:      7,
		Type:          domain.EventSysHeartbeat,
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "key")
	assert.NotContains(t, string(raw), "payload")
	assert.NotContains(t, string(raw), "meta")
	assert.NotContains(t, string(raw), "error")
	assert.Contains(t, string(raw), `"sequence":7`)
}

func TestEventTimestamp(t *testing.T) {
	ts := domain.EventTimestamp(time.Unix(1700000000, 500000000))
	assert.InDelta(t, 1700000000.5, ts, 0.0001)
}
