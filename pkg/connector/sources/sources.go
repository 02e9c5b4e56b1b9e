// Package sources registers every source connector. Import it for its side
// effects before creating sources through the registry.
package sources

import (
	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/connector/registry"
	"go.uber.org/zap"

	// Import all source connectors to trigger init() registration
	_ "github.com/ajitpratap0/shepherd/pkg/connector/sources/legacydb"
	_ "github.com/ajitpratap0/shepherd/pkg/connector/sources/rest"
)

// Open creates the source named by cfg.Source.Type.
func Open(cfg *config.Config, logger *zap.Logger) (core.Source, error) {
	return registry.CreateSource(cfg.Source.Type, cfg, logger)
}
