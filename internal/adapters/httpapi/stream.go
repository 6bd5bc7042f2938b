package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/vigilproject/vigil/internal/core/domain"
	"go.trai.ch/zerr"
)

// handleEvents serves the NDJSON event stream. The first line is always a
// sys:ready event carrying the bus instance and the latest sequence number.
// Depending on the requested resumption point the observer then gets either
// an exact replay of the missed events or a full sys:snapshot, followed by
// live events until either side disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, zerr.New("streaming unsupported"))
		return
	}

	since, err := parseSince(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sub, replayed, snapshotNeeded := s.bus.Subscribe(since)
	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	write := func(event domain.Event) bool {
		if err := encoder.Encode(event); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// The sequence is captured before the snapshot is assembled. An event
	// published while the snapshot is being read carries a higher sequence
	// than the snapshot and replays idempotently after it, instead of being
	// discarded as already-seen while its effect is missing from the snapshot.
	last := s.bus.LastSequence()

	ready, _ := json.Marshal(map[string]any{
		"instance":     s.bus.Instance(),
		"lastSequence": last,
	})
	if !write(s.bus.Synthetic(domain.EventSysReady, last, ready)) {
		return
	}

	if snapshotNeeded {
		snapshot, err := s.cache.Snapshot()
		if err != nil {
			s.logger.Error(err)
			return
		}
		payload, _ := json.Marshal(snapshot)
		if !write(s.bus.Synthetic(domain.EventSysSnapshot, last, payload)) {
			return
		}
	}

	for _, event := range replayed {
		if !write(event) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.C():
			if !ok {
				// Dropped by the bus for falling behind.
				return
			}
			if !write(event) {
				return
			}
		}
	}
}

// parseSince reads the resumption point from the query parameter, falling
// back to the resumption header.
func parseSince(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		raw = r.Header.Get(LastSequenceHeader)
	}
	if raw == "" {
		return 0, nil
	}

	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, "invalid since value"), "since", raw)
	}
	return since, nil
}
