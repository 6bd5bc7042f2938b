package ports

import "github.com/vigilproject/vigil/internal/core/domain"

// ConfigLoader loads and validates the vigil configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration reachable from cwd, applies defaults,
	// validates the invalidation graph, and returns the result. The path of
	// the config file is discovered by walking up from cwd.
	Load(cwd string) (*domain.Config, error)
}
