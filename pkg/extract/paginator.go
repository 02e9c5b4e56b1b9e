package extract

import (
	"context"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/jsonapi"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"github.com/ajitpratap0/shepherd/pkg/observability"
	"go.uber.org/zap"
)

// Executor issues one request. *clients.Governor satisfies it.
type Executor interface {
	Execute(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Options shapes the requests of one traversal.
type Options struct {
	// PageSize is sent as per_page when positive
	PageSize int
	// Include lists relationships to sideload
	Include []string
	// OrderBy is the change-time sort sent when a watermark is set
	// (default "-updated_at")
	OrderBy string
	// RangeField, when set, sends the window range as
	// where[field][gte] / where[field][lt]
	RangeField string
	// Params are extra query parameters
	Params url.Values
}

// Paginator walks paginated collections through an Executor, feeding each
// page's sideloaded resources to the run's Resolver.
type Paginator struct {
	exec     Executor
	base     *url.URL
	resolver *Resolver
	logger   *zap.Logger
	ceiling  int
}

// PaginatorOption configures a Paginator.
type PaginatorOption func(*Paginator)

// WithIterationCeiling bounds the number of pages one traversal may request.
func WithIterationCeiling(n int) PaginatorOption {
	return func(p *Paginator) {
		if n > 0 {
			p.ceiling = n
		}
	}
}

// NewPaginator creates a paginator rooted at baseURL.
func NewPaginator(exec Executor, baseURL string, resolver *Resolver, logger *zap.Logger, opts ...PaginatorOption) (*Paginator, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid base url")
	}
	p := &Paginator{
		exec:     exec,
		base:     base,
		resolver: resolver,
		logger:   logger.With(zap.String("component", "paginator")),
		ceiling:  config.DefaultIterationCeiling,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Pages returns a lazy sequence over the pages of endpoint.
//
// Each item's change-time is updated_at, falling back to created_at. With a
// watermark, the collection is requested newest first and the first item at
// or before the watermark ends the whole traversal: it and everything after
// it are dropped and no further page is requested. Without a watermark the
// collection is walked until there is no next link. Reaching the iteration
// ceiling ends the sequence normally. A request or decode failure is yielded
// once as the final element.
func (p *Paginator) Pages(ctx context.Context, endpoint string, opts Options, window FetchWindow) iter.Seq2[*jsonapi.Page, error] {
	return func(yield func(*jsonapi.Page, error) bool) {
		next, err := p.firstURL(endpoint, opts, window)
		if err != nil {
			yield(nil, err)
			return
		}

		for n := 1; ; n++ {
			if n > p.ceiling {
				metrics.SafetyValveTrips.WithLabelValues(endpoint).Inc()
				p.logger.Warn("iteration ceiling reached, ending traversal",
					zap.String("endpoint", endpoint),
					zap.Int("ceiling", p.ceiling))
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, errors.Wrap(err, errors.ErrorTypeTimeout, "traversal cancelled"))
				return
			}

			doc, err := p.fetch(ctx, endpoint, next, n)
			if err != nil {
				yield(nil, err)
				return
			}
			metrics.PagesFetched.WithLabelValues(endpoint).Inc()
			p.resolver.Merge(doc.Included)

			page := &jsonapi.Page{Number: n, Included: doc.Included, Next: doc.Next}
			for _, item := range doc.Data {
				if changed, ok := item.ChangeTime(); ok && !window.Changed(changed) {
					page.Boundary = true
					break
				}
				page.Items = append(page.Items, item)
			}

			if page.Boundary {
				p.logger.Debug("watermark reached",
					zap.String("endpoint", endpoint),
					zap.Int("page", n),
					zap.Int("emitted", len(page.Items)))
			}
			if !yield(page, nil) {
				return
			}
			if page.Boundary || doc.Next == "" {
				return
			}

			ref, err := url.Parse(doc.Next)
			if err != nil {
				yield(nil, errors.Wrap(err, errors.ErrorTypeData, "invalid next link").
					WithDetail("next", doc.Next))
				return
			}
			next = p.base.ResolveReference(ref)
		}
	}
}

// Items flattens Pages into a sequence of resources.
func (p *Paginator) Items(ctx context.Context, endpoint string, opts Options, window FetchWindow) iter.Seq2[jsonapi.Resource, error] {
	return func(yield func(jsonapi.Resource, error) bool) {
		for page, err := range p.Pages(ctx, endpoint, opts, window) {
			if err != nil {
				yield(jsonapi.Resource{}, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func (p *Paginator) firstURL(endpoint string, opts Options, window FetchWindow) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid endpoint").
			WithDetail("endpoint", endpoint)
	}
	u := p.base.ResolveReference(ref)

	q := u.Query()
	for k, vs := range opts.Params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if opts.PageSize > 0 {
		q.Set("per_page", strconv.Itoa(opts.PageSize))
	}
	if len(opts.Include) > 0 {
		q.Set("include", strings.Join(opts.Include, ","))
	}
	if window.HasWatermark() {
		order := opts.OrderBy
		if order == "" {
			order = "-updated_at"
		}
		q.Set("order", order)
	}
	if opts.RangeField != "" {
		if window.RangeStart != nil {
			q.Set("where["+opts.RangeField+"][gte]", window.RangeStart.UTC().Format("2006-01-02T15:04:05Z"))
		}
		if window.RangeEnd != nil {
			q.Set("where["+opts.RangeField+"][lt]", window.RangeEnd.UTC().Format("2006-01-02T15:04:05Z"))
		}
	}
	u.RawQuery = q.Encode()
	return u, nil
}

func (p *Paginator) fetch(ctx context.Context, endpoint string, u *url.URL, n int) (doc *jsonapi.Document, err error) {
	ctx, span := observability.StartSpan(ctx, "paginator.fetch")
	span.SetAttribute("endpoint", endpoint)
	span.SetAttribute("page", n)
	defer func() { span.Finish(err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build request")
	}

	resp, err := p.exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf(errors.ErrorTypeConnection, "unexpected status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode).
			WithDetail("url", u.Redacted()).
			WithDetail("body", string(snippet))
	}

	doc, err = jsonapi.Decode(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed page").
			WithDetail("url", u.Redacted()).
			WithDetail("page", n)
	}

	p.logger.Debug("page fetched",
		zap.String("endpoint", endpoint),
		zap.Int("page", n),
		zap.Int("items", len(doc.Data)),
		zap.Int("included", len(doc.Included)))
	return doc, nil
}
