// Package base provides the BaseConnector that Shepherd sources embed. It
// carries the configuration, the component logger, the retry policy used
// for connection setup and per-phase tracing and progress reporting.
//
// # Usage
//
//	type MySource struct {
//	    *base.BaseConnector
//	    // source-specific fields
//	}
//
//	func NewMySource(cfg *config.Config, logger *zap.Logger) (core.Source, error) {
//	    return &MySource{
//	        BaseConnector: base.NewBaseConnector("my-source", "1.0.0", cfg, logger),
//	    }, nil
//	}
package base

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/logger"
	"github.com/ajitpratap0/shepherd/pkg/observability"
	"go.uber.org/zap"
)

// BaseConnector provides common functionality for all sources.
type BaseConnector struct {
	name    string
	version string
	config  *config.Config
	logger  *zap.Logger

	retryPolicy      *RetryPolicy
	tracer           *observability.PhaseTracer
	progressInterval time.Duration

	closed     bool
	closeMutex sync.Mutex
}

// NewBaseConnector creates a base connector. A nil logger falls back to
// the global logger.
func NewBaseConnector(name, version string, cfg *config.Config, log *zap.Logger) *BaseConnector {
	if log == nil {
		log = logger.Get()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return &BaseConnector{
		name:             name,
		version:          version,
		config:           cfg,
		logger:           log.With(zap.String("connector", name)),
		retryPolicy:      NewRetryPolicy(cfg.Reliability.RetryAttempts, cfg.Reliability.RetryDelay),
		tracer:           observability.NewPhaseTracer(name),
		progressInterval: 10 * time.Second,
	}
}

// Name returns the connector name
func (bc *BaseConnector) Name() string {
	return bc.name
}

// Version returns the connector version
func (bc *BaseConnector) Version() string {
	return bc.version
}

// Config returns the run configuration
func (bc *BaseConnector) Config() *config.Config {
	return bc.config
}

// GetLogger returns the connector logger
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// SetRetryPolicy replaces the retry policy used by ExecuteWithRetry.
func (bc *BaseConnector) SetRetryPolicy(rp *RetryPolicy) {
	bc.retryPolicy = rp
}

// ExecuteWithRetry runs fn under the retry policy, retrying only errors
// classified as retryable.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	return bc.retryPolicy.ExecuteRetryable(ctx, fn)
}

// SupportedPhases filters phases down to those enabled in the configuration,
// keeping their order.
func (bc *BaseConnector) SupportedPhases(phases []string) []string {
	out := make([]string, 0, len(phases))
	for _, p := range phases {
		if bc.config.PhaseEnabled(p) {
			out = append(out, p)
		}
	}
	return out
}

// CheckPhase rejects phases the connector does not implement.
func (bc *BaseConnector) CheckPhase(phase string, phases []string) error {
	for _, p := range phases {
		if p == phase {
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeCapability, "phase %q is not supported by %s", phase, bc.name).
		WithDetail("supported", phases)
}

// TracePhase runs fn inside a span and a progress reporter for the phase.
func (bc *BaseConnector) TracePhase(ctx context.Context, run *extract.Run, phase string, fn func(ctx context.Context, progress *ProgressReporter) error) error {
	log := bc.PhaseLogger(run, phase)
	progress := NewProgressReporter(log, bc.progressInterval)
	progress.Start()
	defer progress.Stop()

	return bc.tracer.Trace(ctx, phase, func(ctx context.Context) error {
		return fn(ctx, progress)
	})
}

// PhaseLogger returns a logger tagged with the run and phase.
func (bc *BaseConnector) PhaseLogger(run *extract.Run, phase string) *zap.Logger {
	log := bc.logger.With(zap.String("phase", phase))
	if run != nil {
		log = log.With(zap.String("run_id", run.ID))
	}
	return log
}

// Health reports an error once the connector is closed.
func (bc *BaseConnector) Health(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()
	if bc.closed {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}
	return nil
}

// Close marks the connector closed. It is idempotent.
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}
	bc.closed = true
	bc.logger.Info("connector closed")
	return nil
}
