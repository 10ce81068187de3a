package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := New()

	r.IncRequest("search", "ok")
	r.IncRequest("search", "ok")
	r.IncRequest("search", "retryable")
	r.IncPage("search")
	r.IncRetry("search")
	r.IncQuery("search", "completed")
	r.IncArtifact("search")
	r.IncCheckpoint()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Requests.WithLabelValues("search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Requests.WithLabelValues("search", "retryable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PagesFetched.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Retries.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Queries.WithLabelValues("search", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ArtifactsWritten.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Checkpoints))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.IncRequest("search", "ok")
		r.IncPage("search")
		r.IncRetry("search")
		r.IncQuery("search", "failed")
		r.IncArtifact("search")
		r.ObserveRateLimitWait("search", time.Second)
		r.ObserveQueryDuration("search", time.Second)
		r.IncCheckpoint()
	})
	assert.Nil(t, r.Registry())
}

func TestMetricsExposure(t *testing.T) {
	r := New()
	r.IncRequest("timeline", "ok")
	r.ObserveRateLimitWait("timeline", 1500*time.Millisecond)
	r.ObserveQueryDuration("timeline", 3*time.Second)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, m := range []string{
		"tweetharvest_requests_total",
		"tweetharvest_rate_limit_wait_seconds",
		"tweetharvest_query_duration_seconds",
	} {
		assert.True(t, strings.Contains(body, m), "expected metric %s in body", m)
	}

	rec = httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
