// Package probes turns configured probe commands into cache computations.
package probes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"go.trai.ch/zerr"
)

// maxCaptureBytes bounds how much probe output is retained per stream.
const maxCaptureBytes = 64 * 1024

// Result is the opaque value a shell probe produces for the cache.
type Result struct {
	Output     string    `json:"output"`
	ExitCode   int       `json:"exitCode"`
	CapturedAt time.Time `json:"capturedAt"`
}

// ShellProbe implements ports.Computable by executing the probe's command.
// All context is passed in at construction; nothing is captured ambiently.
type ShellProbe struct {
	probe  domain.Probe
	logger ports.Logger
}

var _ ports.Computable = (*ShellProbe)(nil)

// NewShellProbe wraps a configured probe as a Computable.
func NewShellProbe(probe domain.Probe, logger ports.Logger) *ShellProbe {
	return &ShellProbe{probe: probe, logger: logger}
}

// Key returns the cache key the probe computes.
func (p *ShellProbe) Key() string {
	return p.probe.Key
}

// Compute runs the probe command and returns its captured output as an
// opaque JSON value. A non-zero exit is a computation failure: the cache
// keeps any stale entry and propagates the error.
func (p *ShellProbe) Compute(ctx context.Context) (json.RawMessage, error) {
	if len(p.probe.Command) == 0 {
		return nil, zerr.With(domain.ErrProbeCommandEmpty, "key", p.probe.Key)
	}

	if p.probe.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.probe.Timeout)
		defer cancel()
	}

	//nolint:gosec // Command argv comes from validated configuration
	cmd := exec.CommandContext(ctx, p.probe.Command[0], p.probe.Command[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &cappedWriter{buf: &stdout}
	cmd.Stderr = &cappedWriter{buf: &stderr}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		wrapped := zerr.Wrap(err, domain.ErrComputeFailed.Error())
		wrapped = zerr.With(wrapped, "key", p.probe.Key)
		wrapped = zerr.With(wrapped, "exitCode", exitCode)
		wrapped = zerr.With(wrapped, "stderr", stderr.String())
		return nil, wrapped
	}

	value, err := json.Marshal(Result{
		Output:     stdout.String(),
		ExitCode:   exitCode,
		CapturedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to marshal probe result")
	}
	return value, nil
}

// cappedWriter discards bytes beyond maxCaptureBytes so a chatty probe
// cannot grow the cache document without bound.
type cappedWriter struct {
	buf *bytes.Buffer
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := maxCaptureBytes - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		_, _ = w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}

// Registry holds the Computable for every configured probe, in warm-up
// priority order.
type Registry struct {
	byKey   map[string]ports.Computable
	ordered []ports.Computable
}

// NewRegistry builds a registry from the configured probes. The ordered view
// is sorted by ascending priority (cheapest probes first), ties broken by key.
func NewRegistry(cfg *domain.Config, logger ports.Logger) *Registry {
	reg := &Registry{byKey: make(map[string]ports.Computable, len(cfg.Probes))}

	sorted := slices.Clone(cfg.Probes)
	slices.SortStableFunc(sorted, func(a, b domain.Probe) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return strings.Compare(a.Key, b.Key)
	})

	for _, probe := range sorted {
		if len(probe.Command) == 0 {
			// Aggregate-only keys have nothing to compute.
			continue
		}
		computable := NewShellProbe(probe, logger)
		reg.byKey[probe.Key] = computable
		reg.ordered = append(reg.ordered, computable)
	}
	return reg
}

// Get returns the Computable for a key.
func (r *Registry) Get(key string) (ports.Computable, bool) {
	computable, ok := r.byKey[key]
	return computable, ok
}

// Ordered returns every Computable in warm-up priority order.
func (r *Registry) Ordered() []ports.Computable {
	return r.ordered
}
