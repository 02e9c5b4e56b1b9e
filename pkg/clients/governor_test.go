package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func response(status int, retryAfter, body string) *http.Response {
	h := make(http.Header)
	if retryAfter != "" {
		h.Set("Retry-After", retryAfter)
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(body))}
}

type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return ctx.Err()
}

func TestGovernorHonorsRetryAfter(t *testing.T) {
	var calls int
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return response(http.StatusTooManyRequests, "5", ""), nil
		}
		return response(http.StatusOK, "", `{"data":[]}`), nil
	})
	sleeper := &recordingSleeper{}
	g := NewGovernor(client, zaptest.NewLogger(t), WithSleeper(sleeper.sleep))

	req, err := http.NewRequest(http.MethodGet, "https://api.example.org/people", nil)
	require.NoError(t, err)

	resp, err := g.Execute(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
	require.Len(t, sleeper.slept, 1)
	assert.GreaterOrEqual(t, sleeper.slept[0], 5*time.Second)
	assert.Equal(t, 6*time.Second, sleeper.slept[0])
	assert.Equal(t, 6*time.Second, g.ThrottledFor())
	assert.Equal(t, int64(1), g.ThrottleEvents())
}

func TestGovernorRetriesUntilServerRelents(t *testing.T) {
	var calls int
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls <= 4 {
			return response(http.StatusTooManyRequests, "1", ""), nil
		}
		return response(http.StatusOK, "", ""), nil
	})
	sleeper := &recordingSleeper{}
	g := NewGovernor(client, zaptest.NewLogger(t), WithSleeper(sleeper.sleep), WithThrottleMargin(0))

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.org/groups", nil)
	resp, err := g.Execute(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 5, calls)
	assert.Len(t, sleeper.slept, 4)
	assert.Equal(t, 4*time.Second, g.ThrottledFor())
}

func TestGovernorThrottleWithoutHintIsFatal(t *testing.T) {
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusTooManyRequests, "", "slow down"), nil
	})
	sleeper := &recordingSleeper{}
	g := NewGovernor(client, zaptest.NewLogger(t), WithSleeper(sleeper.sleep))

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.org/people", nil)
	resp, err := g.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.IsType(err, errors.ErrorTypeThrottle))
	assert.Empty(t, sleeper.slept)
}

func TestGovernorReturnsOtherStatusesUnchanged(t *testing.T) {
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusInternalServerError, "30", "boom"), nil
	})
	g := NewGovernor(client, zaptest.NewLogger(t))

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.org/people", nil)
	resp, err := g.Execute(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Zero(t, g.ThrottledFor())
}

func TestGovernorHTTPDateHint(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var calls int
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return response(http.StatusTooManyRequests, now.Add(10*time.Second).Format(http.TimeFormat), ""), nil
		}
		return response(http.StatusOK, "", ""), nil
	})
	sleeper := &recordingSleeper{}
	g := NewGovernor(client, zaptest.NewLogger(t),
		WithSleeper(sleeper.sleep),
		WithClock(func() time.Time { return now }))

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.org/people", nil)
	resp, err := g.Execute(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Len(t, sleeper.slept, 1)
	assert.Equal(t, 11*time.Second, sleeper.slept[0])
}

func TestGovernorCancelledWhileThrottled(t *testing.T) {
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		return response(http.StatusTooManyRequests, "60", ""), nil
	})
	g := NewGovernor(client, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.org/people", nil)
	_, err := g.Execute(ctx, req)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestGovernorReplaysBody(t *testing.T) {
	var bodies []string
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(req.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			return response(http.StatusTooManyRequests, "0", ""), nil
		}
		return response(http.StatusOK, "", ""), nil
	})
	g := NewGovernor(client, zaptest.NewLogger(t), WithSleeper((&recordingSleeper{}).sleep))

	req, _ := http.NewRequest(http.MethodPost, "https://api.example.org/search", strings.NewReader(`{"q":1}`))
	resp, err := g.Execute(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{`{"q":1}`, `{"q":1}`}, bodies)
}

func TestGovernorAgainstServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	client, err := NewHTTPClient(context.Background(), &HTTPConfig{RequestTimeout: 5 * time.Second, UserAgent: "test"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	g := NewGovernor(client, zaptest.NewLogger(t), WithThrottleMargin(10*time.Millisecond))
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/people", nil)
	resp, err := g.Execute(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int64(2), client.GetStats().TotalRequests)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Now()
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5", 5 * time.Second, true},
		{" 2 ", 2 * time.Second, true},
		{"1.5", 1500 * time.Millisecond, true},
		{"", 0, false},
		{"-3", 0, false},
		{"soon", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseRetryAfter(tt.in, now)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
