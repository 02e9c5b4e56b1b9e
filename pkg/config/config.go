package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultIterationCeiling bounds page traversal when nothing else stops it.
const DefaultIterationCeiling = 100_000_000

// Config is the configuration of one export run. It is organized into the
// same sections an operator edits in the YAML file.
type Config struct {
	// Name identifies the migration (used in logs and output file names)
	Name string `yaml:"name" json:"name"`

	// Source selects and addresses the system being migrated
	Source SourceConfig `yaml:"source" json:"source"`

	// Extraction controls watermarks, ranges and traversal bounds
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`

	// Reliability settings for throttling and retries
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Security holds authentication mode and credentials
	Security SecurityConfig `yaml:"security" json:"security"`

	// Output configures the interchange files
	Output OutputConfig `yaml:"output" json:"output"`

	// Attachments configures binary downloads
	Attachments AttachmentsConfig `yaml:"attachments" json:"attachments"`

	// Observability settings for logs, metrics and traces
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// SourceConfig describes where records come from.
type SourceConfig struct {
	// Type is the registered source name: rest, postgres or mysql
	Type string `yaml:"type" json:"type"`
	// BaseURL is the API root for REST sources
	BaseURL string `yaml:"base_url" json:"base_url"`
	// DSN is the connection string for legacy database sources
	DSN string `yaml:"dsn" json:"dsn"`
	// PageSize is requested per page (per_page) from REST sources
	PageSize int `yaml:"page_size" json:"page_size"`
	// Phases restricts the export to the named phases; empty means all
	Phases []string `yaml:"phases" json:"phases"`
	// UserAgent is sent with every API request
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// ExtractionConfig controls incremental extraction.
type ExtractionConfig struct {
	// Watermark is the RFC 3339 "changed since" bound; empty means full extraction
	Watermark string `yaml:"watermark" json:"watermark"`
	// RangeStart and RangeEnd bound date-ranged collections (RFC 3339 or YYYY-MM-DD)
	RangeStart string `yaml:"range_start" json:"range_start"`
	RangeEnd   string `yaml:"range_end" json:"range_end"`
	// WindowOverlap widens each monthly window backwards
	WindowOverlap time.Duration `yaml:"window_overlap" json:"window_overlap"`
	// IterationCeiling is the page-loop safety valve
	IterationCeiling int `yaml:"iteration_ceiling" json:"iteration_ceiling"`
}

// ReliabilityConfig contains throttling and retry settings.
type ReliabilityConfig struct {
	// ThrottleMargin is added to every server-provided Retry-After
	ThrottleMargin time.Duration `yaml:"throttle_margin" json:"throttle_margin"`
	// RateLimitPerSec paces requests client-side (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateBurst is the token bucket capacity
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
	// RetryAttempts bounds connection setup retries
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts"`
	// RetryDelay is the initial backoff between setup retries
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RequestTimeout bounds a single HTTP exchange
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	// AuthType is none, basic, bearer or oauth2
	AuthType string `yaml:"auth_type" json:"auth_type"`
	// Credentials holds the values the auth type needs
	// (username/password, token, client_id/client_secret/token_url/refresh_token)
	Credentials map[string]string `yaml:"credentials" json:"-"`
}

// OutputConfig configures the record writer.
type OutputConfig struct {
	// Directory receives one file per record kind
	Directory string `yaml:"directory" json:"directory"`
	// Format is csv or jsonl
	Format string `yaml:"format" json:"format"`
	// Compression is none, gzip, zstd or lz4
	Compression string `yaml:"compression" json:"compression"`
}

// AttachmentsConfig configures attachment downloads.
type AttachmentsConfig struct {
	Enabled  bool  `yaml:"enabled" json:"enabled"`
	Workers  int   `yaml:"workers" json:"workers"`
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
	// MetricsAddr serves /metrics when set (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// Tracing enables the stdout span exporter
	Tracing     bool   `yaml:"tracing" json:"tracing"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Name: "shepherd",
		Source: SourceConfig{
			Type:      "rest",
			PageSize:  100,
			UserAgent: "shepherd/0.1",
		},
		Extraction: ExtractionConfig{
			WindowOverlap:    24 * time.Hour,
			IterationCeiling: DefaultIterationCeiling,
		},
		Reliability: ReliabilityConfig{
			ThrottleMargin: time.Second,
			RateBurst:      1,
			RetryAttempts:  3,
			RetryDelay:     time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Security: SecurityConfig{
			AuthType:    "none",
			Credentials: map[string]string{},
		},
		Output: OutputConfig{
			Directory:   "export",
			Format:      "csv",
			Compression: "none",
		},
		Attachments: AttachmentsConfig{
			Enabled:  true,
			Workers:  4,
			MaxBytes: 10 << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogEncoding: "json",
			ServiceName: "shepherd",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case "rest":
		if c.Source.BaseURL == "" {
			return fmt.Errorf("source.base_url is required for rest sources")
		}
	case "postgres", "mysql", "sqlite":
		if c.Source.DSN == "" {
			return fmt.Errorf("source.dsn is required for %s sources", c.Source.Type)
		}
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}

	if c.Source.PageSize <= 0 {
		return fmt.Errorf("source.page_size must be positive")
	}
	if c.Extraction.IterationCeiling <= 0 {
		return fmt.Errorf("extraction.iteration_ceiling must be positive")
	}
	if c.Extraction.WindowOverlap < 0 {
		return fmt.Errorf("extraction.window_overlap cannot be negative")
	}
	if c.Reliability.ThrottleMargin < 0 {
		return fmt.Errorf("reliability.throttle_margin cannot be negative")
	}
	if c.Attachments.Enabled && c.Attachments.Workers <= 0 {
		return fmt.Errorf("attachments.workers must be positive")
	}

	switch c.Output.Format {
	case "csv", "jsonl":
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	switch c.Output.Compression {
	case "", "none", "gzip", "zstd", "lz4":
	default:
		return fmt.Errorf("unknown output compression %q", c.Output.Compression)
	}

	switch strings.ToLower(c.Security.AuthType) {
	case "", "none":
	case "basic":
		if c.Security.Credentials["username"] == "" {
			return fmt.Errorf("basic auth requires credentials.username")
		}
	case "bearer":
		if c.Security.Credentials["token"] == "" {
			return fmt.Errorf("bearer auth requires credentials.token")
		}
	case "oauth2":
		for _, k := range []string{"client_id", "token_url", "refresh_token"} {
			if c.Security.Credentials[k] == "" {
				return fmt.Errorf("oauth2 auth requires credentials.%s", k)
			}
		}
	default:
		return fmt.Errorf("unknown auth type %q", c.Security.AuthType)
	}

	_, start, end, err := c.Extraction.Bounds()
	if err != nil {
		return err
	}
	if start != nil && end != nil && !start.Before(*end) {
		return fmt.Errorf("extraction.range_start must be before range_end")
	}
	return nil
}

// Bounds parses the watermark and range fields. Unset fields are nil.
func (e ExtractionConfig) Bounds() (watermark, start, end *time.Time, err error) {
	if watermark, err = ParseTime(e.Watermark); err != nil {
		return nil, nil, nil, fmt.Errorf("extraction.watermark: %w", err)
	}
	if start, err = ParseTime(e.RangeStart); err != nil {
		return nil, nil, nil, fmt.Errorf("extraction.range_start: %w", err)
	}
	if end, err = ParseTime(e.RangeEnd); err != nil {
		return nil, nil, nil, fmt.Errorf("extraction.range_end: %w", err)
	}
	return watermark, start, end, nil
}

// ParseTime accepts RFC 3339 timestamps and plain dates. Empty input yields nil.
func ParseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", s)
}

// PhaseEnabled reports whether the named phase should run.
func (c *Config) PhaseEnabled(phase string) bool {
	if len(c.Source.Phases) == 0 {
		return true
	}
	for _, p := range c.Source.Phases {
		if strings.EqualFold(p, phase) {
			return true
		}
	}
	return false
}
