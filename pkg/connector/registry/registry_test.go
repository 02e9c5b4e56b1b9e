package registry

import (
	"context"
	"testing"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type stubSource struct{ name string }

func (s *stubSource) Name() string                         { return s.name }
func (s *stubSource) Initialize(ctx context.Context) error { return nil }
func (s *stubSource) Phases() []string                     { return []string{core.PhasePeople} }
func (s *stubSource) RunPhase(ctx context.Context, run *extract.Run, phase string, w core.RecordWriter) error {
	return nil
}
func (s *stubSource) Health(ctx context.Context) error { return nil }
func (s *stubSource) Close(ctx context.Context) error  { return nil }

func TestRegistrySources(t *testing.T) {
	r := NewRegistry()
	factory := func(cfg *config.Config, logger *zap.Logger) (core.Source, error) {
		return &stubSource{name: cfg.Source.Type}, nil
	}

	require.NoError(t, r.RegisterSource("rest", factory))
	require.NoError(t, r.RegisterSource("mysql", factory))
	err := r.RegisterSource("rest", factory)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	assert.Equal(t, []string{"mysql", "rest"}, r.ListSources())
	assert.True(t, r.HasSource("rest"))

	cfg := config.Default()
	cfg.Source.Type = "rest"
	src, err := r.CreateSource("rest", cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "rest", src.Name())

	_, err = r.CreateSource("oracle", cfg, zaptest.NewLogger(t))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegistryDestinations(t *testing.T) {
	r := NewRegistry()
	var got []models.Record
	require.NoError(t, r.RegisterDestination("memory", func(cfg *config.Config, logger *zap.Logger) (core.RecordWriter, error) {
		return core.RecordWriterFunc(func(rec models.Record) error {
			got = append(got, rec)
			return nil
		}), nil
	}))

	w, err := r.CreateDestination("memory", config.Default(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord(models.Fund{ID: 1, Name: "General"}))
	require.NoError(t, w.Close())
	assert.Len(t, got, 1)

	failing := func(cfg *config.Config, logger *zap.Logger) (core.RecordWriter, error) {
		return nil, errors.New(errors.ErrorTypeFile, "disk full")
	}
	require.NoError(t, r.RegisterDestination("broken", failing))
	_, err = r.CreateDestination("broken", config.Default(), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRegistryInfo(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.RegisterConnectorInfo(&core.ConnectorMetadata{}))
	require.NoError(t, r.RegisterConnectorInfo(&core.ConnectorMetadata{Name: "rest", Type: core.ConnectorTypeSource}))

	info, ok := r.Info(core.ConnectorTypeSource, "rest")
	require.True(t, ok)
	assert.Equal(t, "rest", info.Name)
	_, ok = r.Info(core.ConnectorTypeDestination, "rest")
	assert.False(t, ok)
}
