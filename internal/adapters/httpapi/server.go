// Package httpapi exposes the cache and the event bus over HTTP: an NDJSON
// event stream with sequence-based resumption, a snapshot view, and refresh
// and bust operations.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"github.com/vigilproject/vigil/internal/engine/bus"
	"github.com/vigilproject/vigil/internal/engine/cache"
	"go.trai.ch/zerr"
)

// LastSequenceHeader lets reconnecting observers resume without touching the
// URL they were given.
const LastSequenceHeader = "X-Vigil-Last-Sequence"

// Registry resolves cache keys to their computations.
type Registry interface {
	Get(key string) (ports.Computable, bool)
}

// Server wires the HTTP handlers to the cache facade and the event bus.
type Server struct {
	cache    *cache.Cache
	bus      *bus.Bus
	registry Registry
	logger   ports.Logger
	listen   string
}

// New creates the HTTP server for the given listen address.
func New(listen string, c *cache.Cache, b *bus.Bus, registry Registry, logger ports.Logger) *Server {
	return &Server{
		cache:    c,
		bus:      b,
		registry: registry,
		logger:   logger,
		listen:   listen,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/refresh/{key}", s.handleRefresh)
	mux.HandleFunc("POST /api/bust/{key}", s.handleBustKey)
	mux.HandleFunc("POST /api/bust", s.handleBustBody)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info(fmt.Sprintf("listening on %s", s.listen))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return zerr.Wrap(err, domain.ErrServeFailed.Error())
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return zerr.Wrap(err, domain.ErrServeFailed.Error())
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.cache.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"instance":     s.bus.Instance(),
		"lastSequence": s.bus.LastSequence(),
		"entries":      snapshot,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	computable, ok := s.registry.Get(key)
	if !ok {
		s.writeError(w, http.StatusNotFound, zerr.With(domain.ErrKeyNotFound, "key", key))
		return
	}

	force := r.URL.Query().Get("force") == "1"
	value, recomputed, err := s.cache.Get(r.Context(), computable, force)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"key":        key,
		"recomputed": recomputed,
		"value":      json.RawMessage(value),
	})
}

func (s *Server) handleBustKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var busted []string
	var err error
	if r.URL.Query().Get("cascade") == "1" {
		busted, err = s.cache.InvalidateCascade(key)
	} else {
		err = s.cache.Invalidate(key)
		busted = []string{key}
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUnknownKey) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"busted": busted})
}

type bustRequest struct {
	Group string `json:"group"`
	All   bool   `json:"all"`
}

func (s *Server) handleBustBody(w http.ResponseWriter, r *http.Request) {
	var req bustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, zerr.Wrap(err, "decode bust request"))
		return
	}

	var busted []string
	var err error
	switch {
	case req.All:
		busted = s.cache.InvalidateAll()
	case req.Group != "":
		busted, err = s.cache.InvalidateGroup(req.Group)
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("bust request needs group or all"))
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"busted": busted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"instance": s.bus.Instance(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(zerr.Wrap(err, "write response"))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error(err)
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}
