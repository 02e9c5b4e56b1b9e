package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/connector/core"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/ajitpratap0/shepherd/pkg/models"
	"github.com/ajitpratap0/shepherd/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSource runs scripted phases.
type fakeSource struct {
	phases    map[string]func(run *extract.Run, w core.RecordWriter) error
	ran       []string
	runs      []*extract.Run
	throttled time.Duration
}

func (f *fakeSource) Name() string                         { return "fake" }
func (f *fakeSource) Initialize(ctx context.Context) error { return nil }
func (f *fakeSource) Health(ctx context.Context) error     { return nil }
func (f *fakeSource) Close(ctx context.Context) error      { return nil }
func (f *fakeSource) ThrottledFor() time.Duration          { return f.throttled }

func (f *fakeSource) Phases() []string {
	var out []string
	for _, p := range core.AllPhases {
		if _, ok := f.phases[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSource) RunPhase(ctx context.Context, run *extract.Run, phase string, w core.RecordWriter) error {
	f.ran = append(f.ran, phase)
	f.runs = append(f.runs, run)
	fn, ok := f.phases[phase]
	if !ok {
		return errors.Newf(errors.ErrorTypeCapability, "phase %q is not supported", phase)
	}
	return fn(run, w)
}

func writePeople(ids ...int64) func(run *extract.Run, w core.RecordWriter) error {
	return func(run *extract.Run, w core.RecordWriter) error {
		for _, id := range ids {
			if !run.Dedup.ShouldProcess(extract.KeyOf("Person", id)) {
				continue
			}
			if err := w.WriteRecord(&models.Person{ID: id}); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestExporterRunsAllPhasesAndContinuesPastFailure(t *testing.T) {
	src := &fakeSource{phases: map[string]func(*extract.Run, core.RecordWriter) error{
		core.PhasePeople: writePeople(1, 2, 2, 3),
		core.PhaseHouseholds: func(run *extract.Run, w core.RecordWriter) error {
			return errors.New(errors.ErrorTypeConnection, "connection reset")
		},
		core.PhaseGroups: func(run *extract.Run, w core.RecordWriter) error {
			return w.WriteRecord(&models.Group{ID: 9})
		},
	}}
	out := &testutil.Collector{}
	exp := NewExporter(src, out, config.Default(), zaptest.NewLogger(t), WithRunID(func() string { return "run-1" }))

	report, err := exp.Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "phase households failed")
	phase, ok := errors.Detail(err, "phase")
	require.True(t, ok)
	assert.Equal(t, core.PhaseHouseholds, phase)

	assert.Equal(t, []string{core.PhasePeople, core.PhaseHouseholds, core.PhaseGroups}, src.ran)
	assert.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Phases, 3)

	people := report.Phases[0]
	assert.True(t, people.OK())
	assert.Equal(t, int64(3), people.Written)
	assert.Equal(t, 1, people.Duplicates)

	assert.False(t, report.Phases[1].OK())
	assert.Equal(t, int64(1), report.Phases[2].Written)

	assert.Equal(t, []string{core.PhaseHouseholds}, report.Failed())
	assert.Equal(t, int64(4), report.Written())
	assert.Len(t, out.Records(), 4)
	assert.False(t, out.Closed())
}

func TestExporterSharesOneRunAcrossPhases(t *testing.T) {
	src := &fakeSource{phases: map[string]func(*extract.Run, core.RecordWriter) error{
		core.PhasePeople:     writePeople(1, 2),
		core.PhaseAttendance: writePeople(2, 3),
	}}
	exp := NewExporter(src, &testutil.Collector{}, config.Default(), zaptest.NewLogger(t))

	report, err := exp.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, src.runs, 2)
	assert.Same(t, src.runs[0], src.runs[1])
	assert.Equal(t, 1, report.Phases[1].Duplicates)
	assert.NotEmpty(t, report.RunID)

	// a second export gets fresh state
	_, err = exp.Run(context.Background(), []string{core.PhasePeople})
	require.NoError(t, err)
	assert.NotSame(t, src.runs[0], src.runs[2])
}

func TestExporterOrdersRequestedPhases(t *testing.T) {
	src := &fakeSource{phases: map[string]func(*extract.Run, core.RecordWriter) error{
		core.PhasePeople:        writePeople(1),
		core.PhaseContributions: writePeople(),
		core.PhaseHouseholds:    writePeople(),
	}}
	exp := NewExporter(src, &testutil.Collector{}, config.Default(), zaptest.NewLogger(t))

	report, err := exp.Run(context.Background(), []string{"pledges", core.PhaseContributions, core.PhaseHouseholds})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
	assert.Equal(t, []string{core.PhaseHouseholds, core.PhaseContributions, "pledges"}, src.ran)
	assert.Equal(t, []string{"pledges"}, report.Failed())
}

func TestExporterWindowFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Extraction.Watermark = "2024-01-01T00:00:00Z"
	cfg.Extraction.RangeStart = "2024-01-01"
	cfg.Extraction.RangeEnd = "2024-02-01"

	var window extract.FetchWindow
	src := &fakeSource{phases: map[string]func(*extract.Run, core.RecordWriter) error{
		core.PhasePeople: func(run *extract.Run, w core.RecordWriter) error {
			window = run.Window
			return nil
		},
	}}
	_, err := NewExporter(src, &testutil.Collector{}, cfg, zaptest.NewLogger(t)).Run(context.Background(), nil)
	require.NoError(t, err)

	require.NotNil(t, window.Watermark)
	require.NotNil(t, window.RangeStart)
	require.NotNil(t, window.RangeEnd)
	assert.Equal(t, time.February, window.RangeEnd.Month())

	cfg.Extraction.Watermark = "yesterday"
	_, err = NewExporter(src, &testutil.Collector{}, cfg, zaptest.NewLogger(t)).Run(context.Background(), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestExporterReportsThrottling(t *testing.T) {
	src := &fakeSource{}
	src.phases = map[string]func(*extract.Run, core.RecordWriter) error{
		core.PhasePeople: func(run *extract.Run, w core.RecordWriter) error {
			src.throttled += 3 * time.Second
			return nil
		},
		core.PhaseGroups: func(run *extract.Run, w core.RecordWriter) error { return nil },
	}
	report, err := NewExporter(src, &testutil.Collector{}, config.Default(), zaptest.NewLogger(t)).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, report.Phases[0].Throttled)
	assert.Zero(t, report.Phases[1].Throttled)
}

func TestExporterLogsSummary(t *testing.T) {
	obsCore, logs := observer.New(zap.InfoLevel)
	src := &fakeSource{phases: map[string]func(*extract.Run, core.RecordWriter) error{
		core.PhasePeople: writePeople(1),
	}}
	_, err := NewExporter(src, &testutil.Collector{}, config.Default(), zap.New(obsCore), WithRunID(func() string { return "run-9" })).
		Run(context.Background(), nil)
	require.NoError(t, err)

	phase := logs.FilterMessage("phase complete").All()
	require.Len(t, phase, 1)
	fields := phase[0].ContextMap()
	assert.Equal(t, "run-9", fields["run_id"])
	assert.Equal(t, "fake", fields["source"])
	assert.Equal(t, core.PhasePeople, fields["phase"])

	summary := logs.FilterMessage("export finished").All()
	require.Len(t, summary, 1)
	assert.Equal(t, int64(1), summary[0].ContextMap()["written"])
}
