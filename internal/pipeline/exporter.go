// Package pipeline runs an export: it builds the per-invocation extraction
// state, drives a source through its phases in order and records a typed
// result for each phase.
//
// # Basic Usage
//
//	exporter := pipeline.NewExporter(source, writer, cfg, logger)
//	report, err := exporter.Run(ctx, nil) // nil runs every enabled phase
//	for _, r := range report.Phases {
//	    fmt.Println(r.Phase, r.Written, r.Err)
//	}
//
// A failed phase never stops the export; its error is kept in its result
// and joined into the error returned by Run.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/logger"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"github.com/ajitpratap0/shepherd/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exporter moves the records of one source into one writer. The writer is
// owned by the caller.
type Exporter struct {
	source core.Source
	writer core.RecordWriter
	cfg    *config.Config
	logger *zap.Logger

	newRunID func() string
	runOpts  []extract.RunOption
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithRunID replaces the run id generator.
func WithRunID(fn func() string) Option {
	return func(e *Exporter) { e.newRunID = fn }
}

// WithRunOptions passes options to every extract.Run the exporter creates.
func WithRunOptions(opts ...extract.RunOption) Option {
	return func(e *Exporter) { e.runOpts = append(e.runOpts, opts...) }
}

// NewExporter creates an exporter.
func NewExporter(source core.Source, writer core.RecordWriter, cfg *config.Config, log *zap.Logger, opts ...Option) *Exporter {
	if log == nil {
		log = logger.Get()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Exporter{
		source:   source,
		writer:   writer,
		cfg:      cfg,
		logger:   log,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the requested phases, or every phase the source enables when
// phases is empty. Phases always run in canonical order so that households
// are resolved before the contributions that refer to them.
func (e *Exporter) Run(ctx context.Context, phases []string) (*Report, error) {
	watermark, start, end, err := e.cfg.Extraction.Bounds()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid extraction bounds")
	}
	window := extract.FetchWindow{Watermark: watermark, RangeStart: start, RangeEnd: end}

	runID := e.newRunID()
	ctx = logger.WithRun(ctx, runID)
	ctx = logger.WithSource(ctx, e.source.Name())
	log := logger.Decorate(ctx, e.logger)

	run := extract.NewRun(runID, window, e.logger, e.runOpts...)
	report := &Report{RunID: runID, Source: e.source.Name(), Window: window, Started: run.Started}

	if len(phases) == 0 {
		phases = e.source.Phases()
	}
	phases = orderPhases(phases)

	log.Info("export starting",
		zap.Strings("phases", phases),
		zap.Timep("watermark", watermark),
		zap.Timep("range_start", start),
		zap.Timep("range_end", end))

	for _, phase := range phases {
		result := e.runPhase(logger.WithPhase(ctx, phase), run, phase)
		report.Phases = append(report.Phases, result)
	}

	report.Duration = time.Since(run.Started)
	report.Collisions = run.Collisions()
	e.logSummary(log, report)
	return report, report.Err()
}

func (e *Exporter) runPhase(ctx context.Context, run *extract.Run, phase string) PhaseResult {
	log := logger.Decorate(ctx, e.logger)
	counter := &countingWriter{RecordWriter: e.writer}
	droppedBefore := run.Dedup.Dropped()
	throttledBefore := e.throttled()
	timer := metrics.NewTimer()

	err := e.source.RunPhase(ctx, run, phase, counter)

	result := PhaseResult{
		Phase:      phase,
		Written:    counter.n.Load(),
		Duplicates: run.Dedup.Dropped() - droppedBefore,
		Throttled:  e.throttled() - throttledBefore,
		Duration:   timer.Stop(),
		Err:        err,
	}
	metrics.PhaseDuration.WithLabelValues(phase, metrics.Status(err)).Observe(result.Duration.Seconds())

	fields := []zap.Field{
		zap.Int64("written", result.Written),
		zap.Int("duplicates", result.Duplicates),
		zap.Duration("throttled", result.Throttled),
		zap.Duration("duration", result.Duration),
	}
	if err != nil {
		log.Error("phase failed", append(fields, zap.Error(err))...)
	} else {
		log.Info("phase complete", fields...)
	}
	return result
}

func (e *Exporter) throttled() time.Duration {
	if tr, ok := e.source.(core.ThrottleReporter); ok {
		return tr.ThrottledFor()
	}
	return 0
}

func (e *Exporter) logSummary(log *zap.Logger, report *Report) {
	collisions := 0
	for _, c := range report.Collisions {
		collisions += len(c)
	}
	log.Info("export finished",
		zap.Int64("written", report.Written()),
		zap.Strings("failed_phases", report.Failed()),
		zap.Int("surrogate_collisions", collisions),
		zap.Duration("duration", report.Duration))
}

// orderPhases sorts known phases into execution order and keeps unknown
// ones at the end so the source can reject them.
func orderPhases(phases []string) []string {
	requested := make(map[string]bool, len(phases))
	for _, p := range phases {
		requested[p] = true
	}
	out := make([]string, 0, len(phases))
	for _, p := range core.AllPhases {
		if requested[p] {
			out = append(out, p)
			delete(requested, p)
		}
	}
	for _, p := range phases {
		if requested[p] {
			out = append(out, p)
			delete(requested, p)
		}
	}
	return out
}

// countingWriter counts successful writes for one phase.
type countingWriter struct {
	core.RecordWriter
	n atomic.Int64
}

func (c *countingWriter) WriteRecord(rec models.Record) error {
	if err := c.RecordWriter.WriteRecord(rec); err != nil {
		return err
	}
	c.n.Add(1)
	return nil
}
