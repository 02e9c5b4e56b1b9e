package pipeline

import (
	"time"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
)

// PhaseResult is the outcome of one phase.
type PhaseResult struct {
	Phase string
	// Written counts records accepted by the writer
	Written int64
	// Duplicates counts records dropped by the Deduplicator
	Duplicates int
	// Throttled is the time spent waiting on the remote system
	Throttled time.Duration
	Duration  time.Duration
	Err       error
}

// OK reports whether the phase succeeded.
func (r PhaseResult) OK() bool { return r.Err == nil }

// Report summarizes one export run.
type Report struct {
	RunID    string
	Source   string
	Window   extract.FetchWindow
	Started  time.Time
	Duration time.Duration
	Phases   []PhaseResult
	// Collisions lists surrogate ids that had to be re-derived, by kind
	Collisions map[string][]extract.Collision
}

// Written sums the records written by every phase.
func (r *Report) Written() int64 {
	var n int64
	for _, p := range r.Phases {
		n += p.Written
	}
	return n
}

// Failed lists the phases that returned an error.
func (r *Report) Failed() []string {
	var out []string
	for _, p := range r.Phases {
		if !p.OK() {
			out = append(out, p.Phase)
		}
	}
	return out
}

// Err joins the errors of every failed phase, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, p := range r.Phases {
		if p.OK() {
			continue
		}
		errs = append(errs, errors.Wrap(p.Err, errors.TypeOf(p.Err), "phase "+p.Phase+" failed").
			WithDetail("phase", p.Phase))
	}
	return errors.Join(errs...)
}
