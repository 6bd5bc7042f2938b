package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vigilproject/vigil/internal/core/domain"
	"go.trai.ch/zerr"
)

// StatusReport is the daemon state as seen through the snapshot endpoint.
type StatusReport struct {
	Instance     string                     `json:"instance"`
	LastSequence uint64                     `json:"lastSequence"`
	Entries      map[string]json.RawMessage `json:"entries"`
}

// RefreshReport is the outcome of a refresh request.
type RefreshReport struct {
	Key        string          `json:"key"`
	Recomputed bool            `json:"recomputed"`
	Value      json.RawMessage `json:"value"`
}

// BustOptions selects what to invalidate. Exactly one of Key, Group, or All
// should be set; Cascade only applies with Key.
type BustOptions struct {
	Key     string
	Cascade bool
	Group   string
	All     bool
}

// Status queries a running daemon for its current valid entries.
func (a *App) Status(ctx context.Context, addr string) (*StatusReport, error) {
	var report StatusReport
	if err := a.call(ctx, addr, http.MethodGet, "/api/snapshot", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Refresh asks a running daemon to get-or-compute a key.
func (a *App) Refresh(ctx context.Context, addr, key string, force bool) (*RefreshReport, error) {
	path := "/api/refresh/" + key
	if force {
		path += "?force=1"
	}
	var report RefreshReport
	if err := a.call(ctx, addr, http.MethodPost, path, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Bust asks a running daemon to invalidate entries. Returns the busted keys.
func (a *App) Bust(ctx context.Context, addr string, opts BustOptions) ([]string, error) {
	var result struct {
		Busted []string `json:"busted"`
	}

	switch {
	case opts.All || opts.Group != "":
		body, err := json.Marshal(map[string]any{"group": opts.Group, "all": opts.All})
		if err != nil {
			return nil, zerr.Wrap(err, "encode bust request")
		}
		if err := a.call(ctx, addr, http.MethodPost, "/api/bust", body, &result); err != nil {
			return nil, err
		}
	case opts.Key != "":
		path := "/api/bust/" + opts.Key
		if opts.Cascade {
			path += "?cascade=1"
		}
		if err := a.call(ctx, addr, http.MethodPost, path, nil, &result); err != nil {
			return nil, err
		}
	default:
		return nil, zerr.New("nothing to bust: need a key, a group, or --all")
	}

	return result.Busted, nil
}

func (a *App) call(ctx context.Context, addr, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://"+addr+path, reader)
	if err != nil {
		return zerr.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrDaemonUnreachable.Error()), "addr", addr)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		var remote struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&remote)
		if remote.Error == "" {
			remote.Error = resp.Status
		}
		return zerr.With(zerr.New(remote.Error), "status", fmt.Sprintf("%d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return zerr.Wrap(err, "decode response")
	}
	return nil
}
