// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "github.com/vigilproject/vigil/internal/adapters/config"
	_ "github.com/vigilproject/vigil/internal/adapters/logger"
	_ "github.com/vigilproject/vigil/internal/adapters/resolver"
	// Register app nodes.
	_ "github.com/vigilproject/vigil/internal/app"
)
