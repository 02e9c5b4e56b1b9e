// Package attachments downloads binary files referenced by records, such as
// person avatars, with a bounded number of concurrent workers.
package attachments

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ajitpratap0/shepherd/pkg/clients"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"github.com/ajitpratap0/shepherd/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent downloads when no limit is configured.
const DefaultWorkers = 4

// Job is one file to fetch.
type Job struct {
	OwnerKind string
	OwnerID   int64
	URL       string
}

// Name returns the base file name of the job without extension.
func (j Job) Name() string {
	return j.OwnerKind + "-" + strconv.FormatInt(j.OwnerID, 10)
}

// Downloader fetches jobs into a directory. Each job owns a distinct
// destination path and is written through a temporary file that is renamed
// into place once complete.
type Downloader struct {
	client   clients.Doer
	dir      string
	workers  int
	maxBytes int64
	logger   *zap.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithWorkers sets the number of concurrent downloads.
func WithWorkers(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithMaxBytes rejects files larger than n bytes. Zero means unlimited.
func WithMaxBytes(n int64) Option {
	return func(d *Downloader) { d.maxBytes = n }
}

// NewDownloader returns a downloader writing into dir.
func NewDownloader(client clients.Doer, dir string, logger *zap.Logger, opts ...Option) *Downloader {
	d := &Downloader{
		client:  client,
		dir:     dir,
		workers: DefaultWorkers,
		logger:  logger.With(zap.String("component", "attachment_downloader")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches every job and returns the attachments that completed, in
// job order. Failed jobs do not stop the others; their errors are joined
// into the returned error. All workers have finished when Download returns.
func (d *Downloader) Download(ctx context.Context, jobs []Job) ([]models.Attachment, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create attachment directory").
			WithDetail("directory", d.dir)
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]*models.Attachment, len(jobs))
		errs    []error
		owners  = make(map[string]struct{}, len(jobs))
	)
	g.SetLimit(d.workers)

	for i, job := range jobs {
		// one worker per destination
		if _, dup := owners[job.Name()]; dup {
			continue
		}
		owners[job.Name()] = struct{}{}

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				errs = append(errs, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "download cancelled").
					WithDetail("url", job.URL))
				mu.Unlock()
				return nil
			}
			att, err := d.fetch(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.AttachmentDownloads.WithLabelValues("failed").Inc()
				d.logger.Warn("attachment download failed",
					zap.String("owner", job.Name()),
					zap.String("url", job.URL),
					zap.Error(err))
				errs = append(errs, err)
				return nil
			}
			metrics.AttachmentDownloads.WithLabelValues("ok").Inc()
			results[i] = att
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Attachment, 0, len(jobs))
	for _, att := range results {
		if att != nil {
			out = append(out, *att)
		}
	}
	return out, errors.Join(errs...)
}

func (d *Downloader) fetch(ctx context.Context, job Job) (*models.Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid attachment url").
			WithDetail("url", job.URL)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Newf(errors.ErrorTypeConnection, "unexpected status %d", resp.StatusCode).
			WithDetail("url", job.URL).
			WithDetail("status", resp.StatusCode)
	}

	final := filepath.Join(d.dir, job.Name()+extension(job.URL, resp.Header.Get("Content-Type")))
	tmp, err := os.CreateTemp(d.dir, "."+job.Name()+"-*.part")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create temp file")
	}
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmp.Name())
	}()

	body := io.Reader(resp.Body)
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to write attachment").
			WithDetail("url", job.URL)
	}
	if d.maxBytes > 0 && n > d.maxBytes {
		return nil, errors.Newf(errors.ErrorTypeValidation, "attachment exceeds %d bytes", d.maxBytes).
			WithDetail("url", job.URL)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to move attachment into place").
			WithDetail("path", final)
	}

	return &models.Attachment{
		OwnerKind: job.OwnerKind,
		OwnerID:   job.OwnerID,
		SourceURL: job.URL,
		Path:      final,
		Bytes:     n,
	}, nil
}

// extension prefers the URL's file suffix and falls back to the content type.
func extension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		}
		if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}
