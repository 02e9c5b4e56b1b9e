package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileSubstitutesEnvironment(t *testing.T) {
	t.Setenv("SHEPHERD_TEST_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "migration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: first-church
source:
  type: rest
  base_url: https://api.example.org
  page_size: 25
extraction:
  watermark: "2024-03-01T00:00:00Z"
  window_overlap: 48h
reliability:
  throttle_margin: 2s
security:
  auth_type: basic
  credentials:
    username: app
    password: ${SHEPHERD_TEST_SECRET}
output:
  format: jsonl
  compression: zstd
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "first-church", cfg.Name)
	assert.Equal(t, 25, cfg.Source.PageSize)
	assert.Equal(t, 48*time.Hour, cfg.Extraction.WindowOverlap)
	assert.Equal(t, 2*time.Second, cfg.Reliability.ThrottleMargin)
	assert.Equal(t, "s3cret", cfg.Security.Credentials["password"])
	assert.Equal(t, "jsonl", cfg.Output.Format)
	// untouched sections keep defaults
	assert.Equal(t, 4, cfg.Attachments.Workers)
	assert.Equal(t, DefaultIterationCeiling, cfg.Extraction.IterationCeiling)

	watermark, start, end, err := cfg.Extraction.Bounds()
	require.NoError(t, err)
	require.NotNil(t, watermark)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *watermark)
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "rest without base url",
			mutate:  func(c *Config) {},
			wantErr: "base_url",
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Source.Type = "postgres"
			},
			wantErr: "dsn",
		},
		{
			name: "unknown format",
			mutate: func(c *Config) {
				c.Source.BaseURL = "http://x"
				c.Output.Format = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "inverted range",
			mutate: func(c *Config) {
				c.Source.BaseURL = "http://x"
				c.Extraction.RangeStart = "2024-05-01"
				c.Extraction.RangeEnd = "2024-01-01"
			},
			wantErr: "range_start",
		},
		{
			name: "oauth2 missing refresh token",
			mutate: func(c *Config) {
				c.Source.BaseURL = "http://x"
				c.Security.AuthType = "oauth2"
				c.Security.Credentials = map[string]string{"client_id": "id", "token_url": "http://x/token"}
			},
			wantErr: "refresh_token",
		},
		{
			name: "bad watermark",
			mutate: func(c *Config) {
				c.Source.BaseURL = "http://x"
				c.Extraction.Watermark = "last tuesday"
			},
			wantErr: "watermark",
		},
		{
			name: "valid mysql",
			mutate: func(c *Config) {
				c.Source.Type = "mysql"
				c.Source.DSN = "user:pw@tcp(localhost:3306)/church"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("2023-07-04")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 7, 4, 0, 0, 0, 0, time.UTC), *got)

	got, err = ParseTime("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPhaseEnabled(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.PhaseEnabled("people"))

	cfg.Source.Phases = []string{"People", "groups"}
	assert.True(t, cfg.PhaseEnabled("people"))
	assert.False(t, cfg.PhaseEnabled("attendance"))
}

func TestSubstituteEnvVarsUnset(t *testing.T) {
	assert.Equal(t, "a= b=x", substituteEnvVars("a=${SHEPHERD_DEFINITELY_UNSET} b=x"))
}
