// Package rest implements the source for church-management REST APIs that
// page JSON:API documents. Each phase walks one collection through the
// Watermark-Bounded Paginator, resolves sideloaded resources, deduplicates,
// and writes normalized records.
//
// # Endpoints
//
//	people        GET /people?include=emails,households
//	households    GET /households?include=people
//	groups        GET /groups?include=memberships
//	contributions GET /donations?include=fund,household,household.people (per monthly window)
//	attendance    GET /attendances
//	attachments   avatar URLs collected from people
package rest

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/attachments"
	"github.com/ajitpratap0/shepherd/pkg/clients"
	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/base"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"github.com/ajitpratap0/shepherd/pkg/models"
	"go.uber.org/zap"
)

// Source is the REST API source.
type Source struct {
	*base.BaseConnector

	baseURL  *url.URL
	client   *clients.HTTPClient
	governor *clients.Governor
	govOpts  []clients.GovernorOption
	pageSize int
	ceiling  int
	overlap  time.Duration

	mu      sync.Mutex
	avatars map[string][]attachments.Job // by run id
}

var (
	_ core.Source           = (*Source)(nil)
	_ core.ThrottleReporter = (*Source)(nil)
)

// Option configures a Source.
type Option func(*Source)

// WithGovernorOptions passes options to the source's Governor.
func WithGovernorOptions(opts ...clients.GovernorOption) Option {
	return func(s *Source) { s.govOpts = append(s.govOpts, opts...) }
}

// NewSource creates a REST source from cfg. Initialize must be called
// before running phases.
func NewSource(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Source, error) {
	if cfg.Source.BaseURL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "source.base_url is required")
	}
	u, err := url.Parse(cfg.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "source.base_url must be an absolute url").
			WithDetail("base_url", cfg.Source.BaseURL)
	}

	s := &Source{
		BaseConnector: base.NewBaseConnector("rest", "1.0.0", cfg, logger),
		baseURL:       u,
		pageSize:      cfg.Source.PageSize,
		ceiling:       cfg.Extraction.IterationCeiling,
		overlap:       cfg.Extraction.WindowOverlap,
		avatars:       make(map[string][]attachments.Job),
	}
	s.govOpts = append(s.govOpts, clients.WithThrottleMargin(cfg.Reliability.ThrottleMargin))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSourceFromConfig is the registry factory.
func NewSourceFromConfig(cfg *config.Config, logger *zap.Logger) (core.Source, error) {
	return NewSource(cfg, logger)
}

// Initialize builds the HTTP client and Governor.
func (s *Source) Initialize(ctx context.Context) error {
	cfg := s.Config()
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.RequestTimeout = cfg.Reliability.RequestTimeout
	httpCfg.RateLimit = cfg.Reliability.RateLimitPerSec
	httpCfg.RateBurst = cfg.Reliability.RateBurst
	if cfg.Source.UserAgent != "" {
		httpCfg.UserAgent = cfg.Source.UserAgent
	}
	httpCfg.Auth = &clients.AuthConfig{
		Type:        cfg.Security.AuthType,
		Credentials: cfg.Security.Credentials,
		Host:        s.baseURL.Host,
	}

	client, err := clients.NewHTTPClient(ctx, httpCfg, s.GetLogger())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create http client")
	}
	s.client = client
	s.governor = clients.NewGovernor(client, s.GetLogger(), s.govOpts...)

	s.GetLogger().Info("rest source initialized",
		zap.String("base_url", s.baseURL.Redacted()),
		zap.Int("page_size", s.pageSize),
		zap.String("auth", cfg.Security.AuthType))
	return nil
}

// Phases returns the enabled phases in execution order.
func (s *Source) Phases() []string {
	return s.SupportedPhases(core.AllPhases)
}

// RunPhase runs one phase.
func (s *Source) RunPhase(ctx context.Context, run *extract.Run, phase string, w core.RecordWriter) error {
	if s.governor == nil {
		return errors.New(errors.ErrorTypeInternal, "rest source is not initialized")
	}
	if err := s.CheckPhase(phase, core.AllPhases); err != nil {
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
		var err error
		pc.paginator, err = extract.NewPaginator(s.governor, s.baseURL.String(), run.Resolver, pc.logger,
			extract.WithIterationCeiling(s.ceiling))
		if err != nil {
			return err
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
		case core.PhaseAttendance:
			return pc.attendance(ctx)
		default:
			return pc.attachments(ctx)
		}
	})
}

// ThrottledFor returns the time spent waiting on server throttling.
func (s *Source) ThrottledFor() time.Duration {
	if s.governor == nil {
		return 0
	}
	return s.governor.ThrottledFor()
}

// Close releases idle connections.
func (s *Source) Close(ctx context.Context) error {
	if s.client != nil {
		_ = s.client.Close()
	}
	return s.BaseConnector.Close(ctx)
}

// startAvatars marks the run as having collected avatars, even if none turn up.
func (s *Source) startAvatars(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.avatars[runID]; !ok {
		s.avatars[runID] = nil
	}
}

func (s *Source) addAvatar(runID string, job attachments.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avatars[runID] = append(s.avatars[runID], job)
}

// takeAvatars returns and forgets the avatars collected for a run.
func (s *Source) takeAvatars(runID string) ([]attachments.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs, ok := s.avatars[runID]
	delete(s.avatars, runID)
	return jobs, ok
}

// resolveURL makes a possibly relative link absolute.
func (s *Source) resolveURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	return s.baseURL.ResolveReference(ref).String(), true
}

// phaseContext carries the state of one RunPhase call.
type phaseContext struct {
	*Source
	run       *extract.Run
	phase     string
	w         core.RecordWriter
	progress  *base.ProgressReporter
	paginator *extract.Paginator
	logger    *zap.Logger
}

// emit writes rec unless key was already processed in this run. It reports
// whether the record was written.
func (pc *phaseContext) emit(key extract.DedupKey, rec models.Record) (bool, error) {
	if !pc.run.Dedup.ShouldProcess(key) {
		metrics.DuplicatesDropped.WithLabelValues(pc.phase).Inc()
		return false, nil
	}
	if err := pc.w.WriteRecord(rec); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeFile, "failed to write record").
			WithDetail("key", string(key))
	}
	pc.progress.Increment(1)
	return true, nil
}
