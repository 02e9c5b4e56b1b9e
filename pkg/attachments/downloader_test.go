package attachments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajitpratap0/shepherd/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDownloadBoundedPool(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png:" + r.URL.Path))
	}))
	defer srv.Close()

	jobs := make([]Job, 0, 10)
	for i := 1; i <= 10; i++ {
		jobs = append(jobs, Job{OwnerKind: "person", OwnerID: int64(i), URL: srv.URL + "/avatar/" + string(rune('a'+i))})
	}

	dir := t.TempDir()
	d := NewDownloader(srv.Client(), dir, zaptest.NewLogger(t), WithWorkers(3))
	got, err := d.Download(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, got, 10)

	assert.LessOrEqual(t, peak.Load(), int32(3))
	for i, att := range got {
		assert.Equal(t, int64(i+1), att.OwnerID, "results keep job order")
		assert.Equal(t, ".png", filepath.Ext(att.Path))
		data, err := os.ReadFile(att.Path)
		require.NoError(t, err)
		assert.Equal(t, att.Bytes, int64(len(data)))
	}

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*.part"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestDownloadPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.jpg":
			http.NotFound(w, r)
		case "/huge.jpg":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	d := NewDownloader(srv.Client(), dir, zaptest.NewLogger(t), WithMaxBytes(16))
	got, err := d.Download(context.Background(), []Job{
		{OwnerKind: "person", OwnerID: 1, URL: srv.URL + "/one.jpg"},
		{OwnerKind: "person", OwnerID: 2, URL: srv.URL + "/missing.jpg"},
		{OwnerKind: "person", OwnerID: 3, URL: srv.URL + "/huge.jpg"},
		{OwnerKind: "person", OwnerID: 1, URL: srv.URL + "/duplicate.jpg"},
	})

	require.Error(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, filepath.Join(dir, "person-1.jpg"), got[0].Path)
	assert.Equal(t, srv.URL+"/one.jpg", got[0].SourceURL)

	var typed *errors.Error
	assert.True(t, errors.As(err, &typed))
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Contains(t, err.Error(), "exceeds 16 bytes")

	_, statErr := os.Stat(filepath.Join(dir, "person-3.jpg"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDownloader(srv.Client(), t.TempDir(), zaptest.NewLogger(t))
	got, err := d.Download(ctx, []Job{{OwnerKind: "person", OwnerID: 1, URL: srv.URL + "/a.jpg"}})
	assert.Empty(t, got)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".jpeg", extension("https://cdn.example.com/a/b.JPEG?size=2", ""))
	assert.Equal(t, ".jpg", extension("https://cdn.example.com/avatar", "image/jpeg"))
	assert.Equal(t, ".png", extension("https://cdn.example.com/avatar", "image/png; charset=binary"))
	assert.Equal(t, ".bin", extension("https://cdn.example.com/avatar", ""))
}
