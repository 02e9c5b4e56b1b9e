package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/shepherd/internal/pipeline"
	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/destinations"
	"github.com/ajitpratap0/shepherd/pkg/connector/sources"
	"github.com/ajitpratap0/shepherd/pkg/logger"
	"github.com/ajitpratap0/shepherd/pkg/metrics"
	"github.com/ajitpratap0/shepherd/pkg/observability"
)

func newExportCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run an export",
		Long: `Run an export with the given configuration. Flags and SHEPHERD_* environment
variables override values from the configuration file.

Example:
  shepherd export --config migration.yaml --since 2024-05-01 --phases people,households`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runExport(ctx, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Path to the YAML configuration file")
	flags.String("source-type", "", "Source type (rest, postgres, mysql, sqlite)")
	flags.String("base-url", "", "API root for rest sources")
	flags.String("dsn", "", "Connection string for database sources")
	flags.String("since", "", "Only export records changed after this time (RFC 3339 or YYYY-MM-DD)")
	flags.String("range-start", "", "Start of the date range for dated records")
	flags.String("range-end", "", "End of the date range for dated records (exclusive)")
	flags.StringSlice("phases", nil, "Restrict the export to these phases")
	flags.StringP("output", "o", "", "Output directory")
	flags.String("format", "", "Output format (csv, jsonl)")
	flags.String("compression", "", "Output compression (none, gzip, zstd, lz4)")
	flags.Bool("no-attachments", false, "Skip attachment downloads")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.Bool("tracing", false, "Export phase spans to stderr")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	_ = v.BindPFlags(flags)

	return cmd
}

func runExport(ctx context.Context, cfg *config.Config, out io.Writer) error {
	log, err := logger.New(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	tracing := observability.DefaultTracingConfig()
	tracing.Enabled = cfg.Observability.Tracing
	tracing.ServiceName = cfg.Observability.ServiceName
	tracing.ServiceVersion = version
	shutdownTracing, err := observability.InitTracing(tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		stopMetrics := serveMetrics(addr, log)
		defer stopMetrics()
	}

	source, err := sources.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	if err := source.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	defer func() { _ = source.Close(context.Background()) }()

	writer, err := destinations.Open("", cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	report, runErr := pipeline.NewExporter(source, writer, cfg, log).Run(ctx, nil)
	closeErr := writer.Close()

	if report != nil {
		printReport(out, report)
	}
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finalize output: %w", closeErr)
	}
	return nil
}

func serveMetrics(addr string, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printReport(out io.Writer, report *pipeline.Report) {
	fmt.Fprintf(out, "run %s (%s) finished in %s\n", report.RunID, report.Source, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  %-14s %10s %10s %10s  %s\n", "PHASE", "WRITTEN", "DUPLICATES", "THROTTLED", "STATUS")
	for _, p := range report.Phases {
		status := "ok"
		if !p.OK() {
			status = "failed: " + p.Err.Error()
		}
		fmt.Fprintf(out, "  %-14s %10d %10d %10s  %s\n", p.Phase, p.Written, p.Duplicates, p.Throttled.Round(time.Second), status)
	}
	for kind, collisions := range report.Collisions {
		fmt.Fprintf(out, "  %d surrogate id collision(s) for %s\n", len(collisions), kind)
	}
}
