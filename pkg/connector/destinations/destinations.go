// Package destinations links every destination connector into the registry
// and opens the configured one.
package destinations

import (
	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/connector/registry"
	"go.uber.org/zap"

	// Import all destination connectors to trigger init() registration
	_ "github.com/ajitpratap0/shepherd/pkg/connector/destinations/file"
)

// Default is the destination used when none is named.
const Default = "file"

// Open creates the named destination from the global registry.
func Open(name string, cfg *config.Config, logger *zap.Logger) (core.RecordWriter, error) {
	if name == "" {
		name = Default
	}
	return registry.CreateDestination(name, cfg, logger)
}
