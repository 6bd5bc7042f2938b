package resolver

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/vigilproject/vigil/internal/core/ports"
)

// NodeID is the unique identifier for the watch resolver Graft node.
const NodeID graft.ID = "adapter.resolver"

func init() {
	graft.Register(graft.Node[ports.WatchResolver]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.WatchResolver, error) {
			return New(), nil
		},
	})
}
