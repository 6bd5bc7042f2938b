package bus

import (
	"context"
	"time"

	"github.com/vigilproject/vigil/internal/core/domain"
)

// RunHeartbeat publishes a sys:heartbeat whenever the bus has been idle for
// at least interval, so stream consumers can distinguish a quiet server from
// a dead connection. Busy periods suppress heartbeats entirely. Blocks until
// ctx is cancelled.
func (b *Bus) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if b.idleSince(now) >= interval {
				b.Publish(domain.EventSysHeartbeat, "", nil)
			}
		}
	}
}
