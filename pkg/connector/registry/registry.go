package registry

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"go.uber.org/zap"
)

// Registry manages connector registration and instantiation
type Registry struct {
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
	info         map[string]*core.ConnectorMetadata
	mu           sync.RWMutex
}

// SourceFactory creates a source from the run configuration.
type SourceFactory func(cfg *config.Config, logger *zap.Logger) (core.Source, error)

// DestinationFactory creates a record writer from the run configuration.
type DestinationFactory func(cfg *config.Config, logger *zap.Logger) (core.RecordWriter, error)

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
		info:         make(map[string]*core.ConnectorMetadata),
	}
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "source connector %s already registered", name)
	}
	r.sources[name] = factory
	return nil
}

// RegisterDestination registers a destination connector factory
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "destination connector %s already registered", name)
	}
	r.destinations[name] = factory
	return nil
}

// RegisterConnectorInfo records descriptive metadata for a connector.
func (r *Registry) RegisterConnectorInfo(info *core.ConnectorMetadata) error {
	if info == nil || info.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "connector info requires a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info[string(info.Type)+"/"+info.Name] = info
	return nil
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(name string, cfg *config.Config, logger *zap.Logger) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "source connector %s not found", name).
			WithDetail("available", r.ListSources())
	}

	source, err := factory(cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create source connector "+name)
	}
	return source, nil
}

// CreateDestination creates a destination connector instance
func (r *Registry) CreateDestination(name string, cfg *config.Config, logger *zap.Logger) (core.RecordWriter, error) {
	r.mu.RLock()
	factory, exists := r.destinations[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "destination connector %s not found", name).
			WithDetail("available", r.ListDestinations())
	}

	destination, err := factory(cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create destination connector "+name)
	}
	return destination, nil
}

// ListSources returns the sorted names of registered source connectors
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.sources))
	for name := range r.sources {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	return sources
}

// ListDestinations returns the sorted names of registered destination connectors
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	destinations := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		destinations = append(destinations, name)
	}
	sort.Strings(destinations)
	return destinations
}

// Info returns the metadata registered for a connector, if any.
func (r *Registry) Info(typ core.ConnectorType, name string) (*core.ConnectorMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.info[string(typ)+"/"+name]
	return info, ok
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// Global registry functions

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(name string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, factory)
}

// RegisterConnectorInfo records metadata in the global registry
func RegisterConnectorInfo(info *core.ConnectorMetadata) error {
	return globalRegistry.RegisterConnectorInfo(info)
}

// CreateSource creates a source connector from the global registry
func CreateSource(name string, cfg *config.Config, logger *zap.Logger) (core.Source, error) {
	return globalRegistry.CreateSource(name, cfg, logger)
}

// CreateDestination creates a destination connector from the global registry
func CreateDestination(name string, cfg *config.Config, logger *zap.Logger) (core.RecordWriter, error) {
	return globalRegistry.CreateDestination(name, cfg, logger)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
