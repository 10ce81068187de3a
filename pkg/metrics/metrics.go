// Package metrics exposes harvest counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tweetharvest"

// Recorder holds the collectors for one process. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Requests         *prometheus.CounterVec
	PagesFetched     *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	Queries          *prometheus.CounterVec
	ArtifactsWritten *prometheus.CounterVec
	RateLimitWait    *prometheus.HistogramVec
	QueryDuration    *prometheus.HistogramVec
	Checkpoints      prometheus.Counter
}

// New creates a Recorder registered on its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total pages received",
		}, []string{"endpoint"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total request retries",
		}, []string{"endpoint"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Query keys processed by terminal state",
		}, []string{"endpoint", "terminal"}),
		ArtifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Page artifacts written to disk",
		}, []string{"endpoint"}),
		RateLimitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting on the rate limiter",
			Buckets:   []float64{0, 0.1, 0.5, 1, 2, 3, 5, 10},
		}, []string{"class"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Wall time spent on one query key",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"endpoint"}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_flushes_total",
			Help:      "Checkpoint snapshots written",
		}),
	}

	r.registry.MustRegister(
		r.Requests, r.PagesFetched, r.Retries, r.Queries,
		r.ArtifactsWritten, r.RateLimitWait, r.QueryDuration, r.Checkpoints,
	)
	return r
}

// Registry returns the registry the collectors are registered on
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// IncRequest counts one request with its outcome kind
func (r *Recorder) IncRequest(endpoint, outcome string) {
	if r == nil {
		return
	}
	r.Requests.WithLabelValues(endpoint, outcome).Inc()
}

// IncPage counts one successfully received page
func (r *Recorder) IncPage(endpoint string) {
	if r == nil {
		return
	}
	r.PagesFetched.WithLabelValues(endpoint).Inc()
}

// IncRetry counts one reissued request
func (r *Recorder) IncRetry(endpoint string) {
	if r == nil {
		return
	}
	r.Retries.WithLabelValues(endpoint).Inc()
}

// IncQuery counts one processed key by terminal state
func (r *Recorder) IncQuery(endpoint, terminal string) {
	if r == nil {
		return
	}
	r.Queries.WithLabelValues(endpoint, terminal).Inc()
}

// IncArtifact counts one artifact written
func (r *Recorder) IncArtifact(endpoint string) {
	if r == nil {
		return
	}
	r.ArtifactsWritten.WithLabelValues(endpoint).Inc()
}

// ObserveRateLimitWait records time spent blocked on the limiter
func (r *Recorder) ObserveRateLimitWait(class string, d time.Duration) {
	if r == nil {
		return
	}
	r.RateLimitWait.WithLabelValues(class).Observe(d.Seconds())
}

// ObserveQueryDuration records how long one key took
func (r *Recorder) ObserveQueryDuration(endpoint string, d time.Duration) {
	if r == nil {
		return
	}
	r.QueryDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncCheckpoint counts one snapshot flush
func (r *Recorder) IncCheckpoint() {
	if r == nil {
		return
	}
	r.Checkpoints.Inc()
}

// Handler returns the HTTP mux serving /metrics and /health
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Serve runs the metrics server on addr until ctx is done
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
