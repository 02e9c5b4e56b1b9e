package extract

import (
	"time"

	"go.uber.org/zap"
)

// Run holds every piece of state scoped to one export invocation. Nothing in
// it outlives the run and nothing is shared between runs.
type Run struct {
	ID      string
	Window  FetchWindow
	Started time.Time

	Resolver        *Resolver
	Dedup           *Deduplicator
	Representatives *RepresentativeSelector

	logger     *zap.Logger
	identities map[string]*IdentityAssigner
	identOpts  []IdentityOption
}

// RunOption configures a Run.
type RunOption func(*Run)

// WithIdentityOptions applies opts to every identity assigner of the run.
func WithIdentityOptions(opts ...IdentityOption) RunOption {
	return func(r *Run) { r.identOpts = append(r.identOpts, opts...) }
}

// NewRun creates the state of one export invocation. A nil logger discards
// collision warnings.
func NewRun(id string, window FetchWindow, logger *zap.Logger, opts ...RunOption) *Run {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Run{
		ID:              id,
		Window:          window,
		Started:         time.Now(),
		Resolver:        NewResolver(),
		Dedup:           NewDeduplicator(),
		Representatives: NewRepresentativeSelector(),
		logger:          logger.With(zap.String("run_id", id)),
		identities:      make(map[string]*IdentityAssigner),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identities returns the identity assigner for a record kind, creating it
// on first use. Surrogates are unique within their kind.
func (r *Run) Identities(kind string) *IdentityAssigner {
	if a, ok := r.identities[kind]; ok {
		return a
	}
	a := NewIdentityAssigner(kind, r.logger, r.identOpts...)
	r.identities[kind] = a
	return a
}

// Collisions returns the collision audit trail of every kind.
func (r *Run) Collisions() map[string][]Collision {
	out := make(map[string][]Collision, len(r.identities))
	for kind, a := range r.identities {
		if c := a.Collisions(); len(c) > 0 {
			out[kind] = c
		}
	}
	return out
}

// Logger returns the run-scoped logger.
func (r *Run) Logger() *zap.Logger {
	return r.logger
}
