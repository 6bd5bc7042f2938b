package app

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/vigilproject/vigil/internal/adapters/config"
	"github.com/vigilproject/vigil/internal/adapters/logger"
	"github.com/vigilproject/vigil/internal/adapters/resolver"
	"github.com/vigilproject/vigil/internal/core/ports"
)

// Components bundles the fully wired application for the entry point.
type Components struct {
	App    *App
	Logger ports.Logger
}

const (
	// AppNodeID is the unique identifier for the app Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.NodeID, resolver.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (*App, error) {
			loader, err := graft.Dep[ports.ConfigLoader](ctx)
			if err != nil {
				return nil, err
			}
			watchResolver, err := graft.Dep[ports.WatchResolver](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return New(loader, watchResolver, log), nil
		},
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{AppNodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Components, error) {
			application, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return &Components{App: application, Logger: log}, nil
		},
	})
}
