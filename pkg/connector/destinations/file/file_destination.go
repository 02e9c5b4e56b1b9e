// Package file provides the interchange-file destination. Records are
// written to one file per kind, as CSV or JSON lines, optionally compressed.
//
// # Layout
//
//	<directory>/person.csv
//	<directory>/household.csv
//	<directory>/contribution.jsonl.zst
//
// Files are created on the first record of their kind. CSV files start with
// the kind's header row.
package file

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/shepherd/pkg/compression"
	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"github.com/ajitpratap0/shepherd/pkg/models"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Format is the serialization of an output file.
type Format string

const (
	// CSV writes a header row followed by one row per record
	CSV Format = "csv"
	// JSONLines writes one JSON object per line
	JSONLines Format = "jsonl"
)

// ParseFormat maps a configuration value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSONLines:
		return f, nil
	case "json", "ndjson":
		return JSONLines, nil
	default:
		return "", errors.Newf(errors.ErrorTypeConfig, "unsupported output format %q", s)
	}
}

// Options configures a Writer.
type Options struct {
	Directory   string
	Format      Format
	Compression compression.Algorithm
	Level       compression.Level
}

// Writer is a core.RecordWriter writing one file per record kind. It is safe
// for concurrent use.
type Writer struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	files  map[string]*kindFile
	closed bool
}

var _ core.RecordWriter = (*Writer)(nil)

// kindFile is the open output of one record kind. Writes flow
// csv/json encoder -> bufio -> codec -> file.
type kindFile struct {
	path    string
	file    *os.File
	codec   io.WriteCloser
	buf     *bufio.Writer
	csv     *csv.Writer
	json    *gojson.Encoder
	records int64
}

// New creates the output directory and returns a Writer.
func New(opts Options, logger *zap.Logger) (*Writer, error) {
	if opts.Directory == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "output directory is required")
	}
	if opts.Format == "" {
		opts.Format = CSV
	}
	if opts.Compression == "" {
		opts.Compression = compression.None
	}
	if opts.Level == 0 {
		opts.Level = compression.Default
	}
	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("directory", opts.Directory)
	}
	return &Writer{
		opts:   opts,
		logger: logger.With(zap.String("component", "file_destination")),
		files:  make(map[string]*kindFile),
	}, nil
}

// NewFromConfig builds a Writer from the output section of cfg.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (core.RecordWriter, error) {
	format, err := ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	alg, err := compression.ParseAlgorithm(cfg.Output.Compression)
	if err != nil {
		return nil, err
	}
	return New(Options{Directory: cfg.Output.Directory, Format: format, Compression: alg}, logger)
}

// WriteRecord appends rec to the file of its kind.
func (w *Writer) WriteRecord(rec models.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New(errors.ErrorTypeFile, "writer is closed")
	}

	kind := rec.Kind()
	kf, ok := w.files[kind]
	if !ok {
		var err error
		if kf, err = w.open(kind, rec.Header()); err != nil {
			return err
		}
		w.files[kind] = kf
	}

	var err error
	switch w.opts.Format {
	case JSONLines:
		err = kf.json.Encode(rec)
	default:
		err = kf.csv.Write(rec.Row())
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record").
			WithDetail("kind", kind).
			WithDetail("path", kf.path)
	}
	kf.records++
	metrics.RecordsWritten.WithLabelValues(kind).Inc()
	return nil
}

// Path returns the file path records of kind are written to.
func (w *Writer) Path(kind string) string {
	name := kind + "." + string(w.opts.Format) + w.opts.Compression.Extension()
	return filepath.Join(w.opts.Directory, name)
}

// Counts returns the number of records written per kind.
func (w *Writer) Counts() map[string]int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]int64, len(w.files))
	for kind, kf := range w.files {
		out[kind] = kf.records
	}
	return out
}

// Close flushes and closes every file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	kinds := make([]string, 0, len(w.files))
	for kind := range w.files {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var errs []error
	for _, kind := range kinds {
		kf := w.files[kind]
		if err := kf.close(); err != nil {
			errs = append(errs, errors.Wrap(err, errors.ErrorTypeFile, "failed to close output").
				WithDetail("path", kf.path))
			continue
		}
		w.logger.Info("output file closed",
			zap.String("kind", kind),
			zap.String("path", kf.path),
			zap.Int64("records", kf.records))
	}
	return errors.Join(errs...)
}

func (w *Writer) open(kind string, header []string) (*kindFile, error) {
	path := w.Path(kind)
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").
			WithDetail("path", path)
	}
	codec, err := compression.NewWriter(f, w.opts.Compression, w.opts.Level)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	kf := &kindFile{path: path, file: f, codec: codec, buf: bufio.NewWriterSize(codec, 64<<10)}
	switch w.opts.Format {
	case JSONLines:
		kf.json = gojson.NewEncoder(kf.buf)
	default:
		kf.csv = csv.NewWriter(kf.buf)
		if err := kf.csv.Write(header); err != nil {
			_ = kf.close()
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to write header").
				WithDetail("path", path)
		}
	}

	w.logger.Debug("output file opened", zap.String("kind", kind), zap.String("path", path))
	return kf, nil
}

func (kf *kindFile) close() error {
	var errs []error
	if kf.csv != nil {
		kf.csv.Flush()
		errs = append(errs, kf.csv.Error())
	}
	errs = append(errs, kf.buf.Flush(), kf.codec.Close(), kf.file.Close())
	return errors.Join(errs...)
}
