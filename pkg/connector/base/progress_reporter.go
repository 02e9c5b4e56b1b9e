package base

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ProgressReporter periodically logs how far a phase has come. The total is
// optional; APIs that report meta.total_count let the log include an ETA.
type ProgressReporter struct {
	logger         *zap.Logger
	reportInterval time.Duration

	processed atomic.Int64
	total     atomic.Int64
	startTime time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewProgressReporter creates a reporter that logs every interval once started.
func NewProgressReporter(logger *zap.Logger, interval time.Duration) *ProgressReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ProgressReporter{
		logger:         logger,
		reportInterval: interval,
		startTime:      time.Now(),
		stopCh:         make(chan struct{}),
	}
}

// Start begins periodic progress reporting
func (pr *ProgressReporter) Start() {
	pr.wg.Add(1)
	go func() {
		defer pr.wg.Done()
		ticker := time.NewTicker(pr.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pr.stopCh:
				return
			case <-ticker.C:
				pr.report("progress update")
			}
		}
	}()
}

// Stop ends periodic reporting and logs a final summary. Safe to call
// more than once.
func (pr *ProgressReporter) Stop() {
	pr.stopOnce.Do(func() {
		close(pr.stopCh)
		pr.wg.Wait()
		pr.report("phase progress final")
	})
}

// SetTotal records the expected number of records
func (pr *ProgressReporter) SetTotal(total int64) {
	pr.total.Store(total)
}

// Increment adds count processed records
func (pr *ProgressReporter) Increment(count int64) {
	pr.processed.Add(count)
}

// GetProgress returns current progress
func (pr *ProgressReporter) GetProgress() (processed, total int64) {
	return pr.processed.Load(), pr.total.Load()
}

// GetETA estimates time remaining, zero when unknown
func (pr *ProgressReporter) GetETA() time.Duration {
	processed, total := pr.GetProgress()
	if processed == 0 || total == 0 || processed >= total {
		return 0
	}
	elapsed := time.Since(pr.startTime)
	perRecord := elapsed / time.Duration(processed)
	return perRecord * time.Duration(total-processed)
}

func (pr *ProgressReporter) report(msg string) {
	processed, total := pr.GetProgress()
	elapsed := time.Since(pr.startTime)

	fields := []zap.Field{
		zap.Int64("processed", processed),
		zap.Duration("elapsed", elapsed),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		fields = append(fields, zap.Float64("records_per_sec", float64(processed)/secs))
	}
	if total > 0 {
		fields = append(fields,
			zap.Int64("total", total),
			zap.Float64("percentage", float64(processed)/float64(total)*100),
			zap.Duration("eta", pr.GetETA()),
		)
	}
	pr.logger.Info(msg, fields...)
}
