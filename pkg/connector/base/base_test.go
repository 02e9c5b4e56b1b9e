package base

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/config"
	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/ajitpratap0/shepherd/pkg/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestRetryPolicyRetriesRetryable(t *testing.T) {
	rp := NewRetryPolicy(3, time.Millisecond)
	rp.Sleep = noSleep

	calls := 0
	err := rp.ExecuteRetryable(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeConnection, "refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyStopsOnPermanent(t *testing.T) {
	rp := NewRetryPolicy(5, time.Millisecond)
	rp.Sleep = noSleep

	calls := 0
	err := rp.ExecuteRetryable(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeAuthentication, "bad password")
	})
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestRetryPolicyExhausted(t *testing.T) {
	rp := NewRetryPolicy(2, time.Millisecond)
	rp.Sleep = noSleep

	err := rp.Execute(context.Background(), func() error {
		return errors.New(errors.ErrorTypeTimeout, "slow")
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.Contains(t, err.Error(), "all attempts failed")
}

func TestRetryPolicyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rp := NewRetryPolicy(3, time.Hour)

	err := rp.Execute(ctx, func() error { return errors.New(errors.ErrorTypeConnection, "down") })
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestRetryPolicyDelay(t *testing.T) {
	rp := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, rp.GetDelay(0))
	assert.Equal(t, 2*time.Second, rp.GetDelay(1))
	assert.Equal(t, 3*time.Second, rp.GetDelay(2))

	rp.RandomizeFactor = 0.5
	d := rp.GetDelay(0)
	assert.GreaterOrEqual(t, d, 500*time.Millisecond)
	assert.LessOrEqual(t, d, 1500*time.Millisecond)
}

func TestBaseConnectorPhases(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Phases = []string{"people", "Attendance"}
	bc := NewBaseConnector("rest", "1.0.0", cfg, zaptest.NewLogger(t))

	assert.Equal(t, []string{"people", "attendance"}, bc.SupportedPhases([]string{"people", "households", "attendance"}))
	assert.NoError(t, bc.CheckPhase("people", []string{"people"}))
	assert.True(t, errors.IsType(bc.CheckPhase("pledges", []string{"people"}), errors.ErrorTypeCapability))
}

func TestBaseConnectorTracePhase(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	bc := NewBaseConnector("rest", "1.0.0", config.Default(), zap.New(core))
	run := extract.NewRun("run-7", extract.FetchWindow{}, zap.New(core))

	err := bc.TracePhase(context.Background(), run, "people", func(ctx context.Context, progress *ProgressReporter) error {
		progress.SetTotal(4)
		progress.Increment(4)
		return nil
	})
	require.NoError(t, err)

	final := logs.FilterMessage("phase progress final").All()
	require.Len(t, final, 1)
	fields := final[0].ContextMap()
	assert.Equal(t, int64(4), fields["processed"])
	assert.Equal(t, "people", fields["phase"])
	assert.Equal(t, "run-7", fields["run_id"])
}

func TestBaseConnectorClose(t *testing.T) {
	bc := NewBaseConnector("rest", "1.0.0", nil, zaptest.NewLogger(t))
	require.NoError(t, bc.Health(context.Background()))
	require.NoError(t, bc.Close(context.Background()))
	require.NoError(t, bc.Close(context.Background()))
	assert.True(t, errors.IsType(bc.Health(context.Background()), errors.ErrorTypeConnection))
}

func TestProgressETA(t *testing.T) {
	pr := NewProgressReporter(zaptest.NewLogger(t), time.Hour)
	assert.Zero(t, pr.GetETA())
	pr.SetTotal(10)
	pr.Increment(5)
	time.Sleep(time.Millisecond)
	assert.Positive(t, pr.GetETA())
	processed, total := pr.GetProgress()
	assert.Equal(t, int64(5), processed)
	assert.Equal(t, int64(10), total)
}
