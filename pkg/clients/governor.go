package clients

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"go.uber.org/zap"
)

// DefaultThrottleMargin is added to every Retry-After the server sends.
const DefaultThrottleMargin = time.Second

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Governor issues requests and transparently absorbs server throttling.
// A 429 carrying Retry-After is slept through (plus a margin) and the same
// request is issued again, as many times as the server asks. A 429 without
// a usable hint is a fatal ErrorTypeThrottle error. Every other response,
// successful or not, is returned to the caller unchanged.
type Governor struct {
	client Doer
	logger *zap.Logger
	margin time.Duration
	now    func() time.Time
	sleep  Sleeper

	throttled atomic.Int64 // nanoseconds
	events    atomic.Int64
}

// GovernorOption configures a Governor.
type GovernorOption func(*Governor)

// WithThrottleMargin sets the safety margin added to Retry-After.
func WithThrottleMargin(d time.Duration) GovernorOption {
	return func(g *Governor) { g.margin = d }
}

// WithClock replaces the wall clock used to interpret HTTP-date hints.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) { g.now = now }
}

// WithSleeper replaces the sleep used between throttled attempts.
func WithSleeper(s Sleeper) GovernorOption {
	return func(g *Governor) { g.sleep = s }
}

// NewGovernor wraps client.
func NewGovernor(client Doer, logger *zap.Logger, opts ...GovernorOption) *Governor {
	g := &Governor{
		client: client,
		logger: logger.With(zap.String("component", "rate_limit_governor")),
		margin: DefaultThrottleMargin,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do satisfies Doer so a Governor can stand wherever a client is expected.
func (g *Governor) Do(req *http.Request) (*http.Response, error) {
	return g.Execute(req.Context(), req)
}

// Execute issues req until the server stops throttling it. Transport
// failures are returned as ErrorTypeConnection errors.
func (g *Governor) Execute(ctx context.Context, req *http.Request) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		issued, err := rewind(ctx, req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := g.client.Do(issued)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled").
					WithDetail("url", req.URL.Redacted())
			}
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
				WithDetail("url", req.URL.Redacted())
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		hint := resp.Header.Get("Retry-After")
		drain(resp)

		wait, ok := parseRetryAfter(hint, g.now())
		if !ok {
			return nil, errors.New(errors.ErrorTypeThrottle, "throttled without a retry hint").
				WithDetail("url", req.URL.Redacted()).
				WithDetail("retry_after", hint)
		}
		wait += g.margin

		g.logger.Warn("throttled by server, waiting before retry",
			zap.String("url", req.URL.Redacted()),
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt))

		if err := g.sleep(ctx, wait); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "cancelled while throttled").
				WithDetail("url", req.URL.Redacted())
		}

		g.throttled.Add(int64(wait))
		g.events.Add(1)
		metrics.ThrottleSeconds.Add(wait.Seconds())
		metrics.ThrottleEvents.Inc()
	}
}

// ThrottledFor returns the accumulated time spent waiting on the server.
func (g *Governor) ThrottledFor() time.Duration {
	return time.Duration(g.throttled.Load())
}

// ThrottleEvents returns how many throttled responses were retried.
func (g *Governor) ThrottleEvents() int64 {
	return g.events.Load()
}

// rewind returns a request for the given attempt. The first attempt uses
// req itself; later attempts clone it with a fresh body.
func rewind(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 {
		return req.WithContext(ctx), nil
	}
	clone := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New(errors.ErrorTypeInternal, "cannot replay request body").
				WithDetail("url", req.URL.Redacted())
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "cannot replay request body")
		}
		clone.Body = body
	}
	return clone, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP-date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
