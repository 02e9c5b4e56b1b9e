// Package legacydb reads congregational records directly from the database
// of a legacy church-management application. PostgreSQL is read through a
// pgx pool; MySQL and SQLite through database/sql.
//
// Expected tables:
//
//	individuals     id, first_name, last_name, birthdate, gender, status, email, family_id, updated_at
//	families        id, name, updated_at
//	family_members  family_id, individual_id, role, position
//	groups          id, name, description, group_type, updated_at
//	group_members   id, group_id, individual_id, role, joined_at, updated_at
//	funds           id, name
//	contributions   id, individual_id, family_id, fund_id, amount_cents, currency, method, received_at, updated_at
//	attendance      id, individual_id, group_id, starts_at, updated_at
//
// Rows with a NULL updated_at are always treated as changed.
package legacydb

import (
	"context"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/base"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"go.uber.org/zap"
)

// Phases lists what a database source can extract. Attachments are not
// stored in the legacy schema.
var Phases = []string{
	core.PhasePeople,
	core.PhaseHouseholds,
	core.PhaseGroups,
	core.PhaseContributions,
	core.PhaseAttendance,
}

const defaultMaxConns = 4

// Source is the legacy database source.
type Source struct {
	*base.BaseConnector

	dialect string
	dsn     string
	db      database
}

var _ core.Source = (*Source)(nil)

// NewSource creates a source for the given dialect.
func NewSource(dialect string, cfg *config.Config, logger *zap.Logger) (*Source, error) {
	if cfg.Source.DSN == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "source.dsn is required for %s sources", dialect)
	}
	switch dialect {
	case DialectPostgres, DialectMySQL, DialectSQLite:
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown database dialect %q", dialect)
	}
	return &Source{
		BaseConnector: base.NewBaseConnector(dialect, "1.0.0", cfg, logger),
		dialect:       dialect,
		dsn:           cfg.Source.DSN,
	}, nil
}

func factory(dialect string) func(cfg *config.Config, logger *zap.Logger) (core.Source, error) {
	return func(cfg *config.Config, logger *zap.Logger) (core.Source, error) {
		return NewSource(dialect, cfg, logger)
	}
}

// Initialize opens the database, retrying transient connection failures.
func (s *Source) Initialize(ctx context.Context) error {
	err := s.ExecuteWithRetry(ctx, func() error {
		db, err := open(ctx, s.dialect, s.dsn, defaultMaxConns)
		if err != nil {
			return err
		}
		if err := db.ping(ctx); err != nil {
			db.close()
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to reach database")
		}
		s.db = db
		return nil
	})
	if err != nil {
		return err
	}
	s.GetLogger().Info("connected to legacy database", zap.String("dialect", s.dialect))
	return nil
}

// Phases returns the enabled phases in execution order.
func (s *Source) Phases() []string {
	return s.SupportedPhases(Phases)
}

// RunPhase runs one phase.
func (s *Source) RunPhase(ctx context.Context, run *extract.Run, phase string, w core.RecordWriter) error {
	if s.db == nil {
		return errors.New(errors.ErrorTypeInternal, "database source is not initialized")
	}
	if err := s.CheckPhase(phase, Phases); err != nil {
		return err
	}

	return s.TracePhase(ctx, run, phase, func(ctx context.Context, progress *base.ProgressReporter) error {
		pc := &phaseContext{
			Source:   s,
			run:      run,
			phase:    phase,
			w:        w,
			progress: progress,
			logger:   s.PhaseLogger(run, phase),
		}
		switch phase {
		case core.PhasePeople:
			return pc.people(ctx)
		case core.PhaseHouseholds:
			return pc.households(ctx)
		case core.PhaseGroups:
			return pc.groups(ctx)
		case core.PhaseContributions:
			return pc.contributions(ctx)
		default:
			return pc.attendance(ctx)
		}
	})
}

// Health pings the database.
func (s *Source) Health(ctx context.Context) error {
	if err := s.BaseConnector.Health(ctx); err != nil {
		return err
	}
	if s.db == nil {
		return errors.New(errors.ErrorTypeConnection, "database source is not initialized")
	}
	if err := s.db.ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "health check failed")
	}
	return nil
}

// Close closes the database.
func (s *Source) Close(ctx context.Context) error {
	if s.db != nil {
		s.db.close()
		s.db = nil
	}
	return s.BaseConnector.Close(ctx)
}

// each runs q and calls fn for every row.
func (s *Source) each(ctx context.Context, q *selectQuery, fn func(r rows) error) error {
	query, args := q.Build(s.dialect)
	r, err := s.db.query(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "query cancelled")
		}
		return errors.Wrap(err, errors.ErrorTypeConnection, "query failed").
			WithDetail("table", q.table)
	}
	defer r.Close()

	for r.Next() {
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := r.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "reading rows failed").
			WithDetail("table", q.table)
	}
	return nil
}
