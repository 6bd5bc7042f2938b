// Package warmup runs the startup pass that precomputes every configured
// probe so the first interactive request is served warm.
package warmup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
	"github.com/vigilproject/vigil/internal/engine/cache"
	"golang.org/x/sync/errgroup"
)

// Orchestrator drives the warm-up pass. Probes are submitted in priority
// order under a bounded concurrency limit; one failing probe is logged and
// counted but never aborts the others.
type Orchestrator struct {
	cache       *cache.Cache
	sink        ports.EventSink
	logger      ports.Logger
	concurrency int
}

// New creates a warm-up orchestrator over the cache facade.
func New(c *cache.Cache, sink ports.EventSink, logger ports.Logger, concurrency int) *Orchestrator {
	return &Orchestrator{
		cache:       c,
		sink:        sink,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Summary is the outcome of one warm-up pass.
type Summary struct {
	Computed     []string `json:"computed"`
	AlreadyValid []string `json:"alreadyValid"`
	Failed       []string `json:"failed"`
	Elapsed      float64  `json:"elapsedSeconds"`
}

// Run warms every computable. Publishes sys:warming before the first probe
// and sys:warm with the summary when the pass completes. Returns the summary
// regardless of individual probe failures; the error is non-nil only when
// ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, computables []ports.Computable) (*Summary, error) {
	started := time.Now()
	o.sink.Publish(domain.EventSysWarming, "", nil, domain.WithMeta(map[string]any{
		"keys": len(computables),
	}))

	var mu sync.Mutex
	summary := &Summary{}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency)

	for _, computable := range computables {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			_, recomputed, err := o.cache.Get(groupCtx, computable, false)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed = append(summary.Failed, computable.Key())
				o.logger.Warn(fmt.Sprintf("warm-up failed for %s: %v", computable.Key(), err))
			case recomputed:
				summary.Computed = append(summary.Computed, computable.Key())
			default:
				summary.AlreadyValid = append(summary.AlreadyValid, computable.Key())
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}

	summary.Elapsed = time.Since(started).Seconds()
	payload, _ := json.Marshal(summary)
	o.sink.Publish(domain.EventSysWarm, "", payload, domain.WithDuration(time.Since(started)))
	return summary, nil
}
