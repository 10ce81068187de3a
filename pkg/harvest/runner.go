package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tweetharvest/pkg/failurelog"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/pagination"
	"tweetharvest/pkg/twitter"
)

// Terminal is how a single query ended
type Terminal int

const (
	Completed Terminal = iota
	Failed
	Interrupted
)

func (t Terminal) String() string {
	switch t {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Interrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("terminal(%d)", int(t))
	}
}

// RunResult summarises one query
type RunResult struct {
	Key          string
	PagesFetched int
	PagesWritten int
	Requests     int
	Terminal     Terminal
	Reason       string
	Duration     time.Duration
}

// ArtifactWriter persists one page of a query
type ArtifactWriter interface {
	SavePage(key string, index int, body []byte, records []json.RawMessage) (string, error)
}

// Runner drives one query key to a terminal state and writes its pages
type Runner struct {
	endpoint twitter.Endpoint
	driver   *pagination.Driver
	writer   ArtifactWriter
	failures *failurelog.Log
	metrics  *metrics.Recorder
	progress Progress
	logger   logger.Logger
	now      func() time.Time
}

// NewRunner creates a runner for ep
func NewRunner(ep twitter.Endpoint, driver *pagination.Driver, writer ArtifactWriter, failures *failurelog.Log, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		endpoint: ep,
		driver:   driver,
		writer:   writer,
		failures: failures,
		progress: nopProgress{},
		logger:   log,
		now:      time.Now,
	}
}

// SetMetrics attaches a metrics recorder
func (r *Runner) SetMetrics(m *metrics.Recorder) {
	r.metrics = m
}

// SetProgress attaches a progress observer; nil detaches it
func (r *Runner) SetProgress(p Progress) {
	if p == nil {
		p = nopProgress{}
	}
	r.progress = p
}

// Endpoint returns the endpoint this runner queries
func (r *Runner) Endpoint() twitter.Endpoint { return r.endpoint }

// Run pages through key until the driver stops. Failures are recorded in the
// failure log and reported in the result, never returned.
func (r *Runner) Run(ctx context.Context, key string, base twitter.Params) RunResult {
	start := r.now()
	res := RunResult{Key: key}
	log := r.logger.WithFields(map[string]interface{}{
		"endpoint": r.endpoint.Name,
		"key":      key,
	})

	defer func() {
		res.Duration = r.now().Sub(start)
		r.metrics.IncQuery(r.endpoint.Name, res.Terminal.String())
		r.metrics.ObserveQueryDuration(r.endpoint.Name, res.Duration)
		logger.LogQueryResult(log, res.Terminal.String(), res.PagesFetched, res.PagesWritten, res.Requests, res.Duration)
	}()

	if err := r.endpoint.ValidateKey(key); err != nil {
		res.Terminal = Failed
		res.Reason = err.Error()
		r.recordFailure(key, failurelog.StageFetch, res)
		return res
	}

	pager := r.driver.Paginate(pagination.NewQuery(r.endpoint, key, base))
	for pager.Next(ctx) {
		page := pager.Page()
		res.PagesFetched++
		if page.Empty() {
			continue
		}

		path, err := r.writer.SavePage(key, page.Index, page.Body, page.Records)
		if err != nil {
			res.Requests = pager.Requests()
			res.Terminal = Failed
			res.Reason = fmt.Sprintf("writing page %d: %v", page.Index, err)
			r.recordFailure(key, failurelog.StageWrite, res)
			return res
		}
		res.PagesWritten++
		r.metrics.IncArtifact(r.endpoint.Name)
		logger.LogPage(log, page.Index, len(page.Records), path)
		r.progress.PageWritten(key, page.Index, len(page.Records))
	}
	res.Requests = pager.Requests()

	switch {
	case pager.State() == pagination.StateDone:
		res.Terminal = Completed
	case pager.Interrupted():
		res.Terminal = Interrupted
		res.Reason = pager.Reason()
	default:
		res.Terminal = Failed
		res.Reason = pager.Reason()
		r.recordFailure(key, failurelog.StageFetch, res)
	}
	return res
}

func (r *Runner) recordFailure(key, stage string, res RunResult) {
	if r.failures == nil {
		return
	}
	r.failures.Record(failurelog.Entry{
		Key:      key,
		Endpoint: r.endpoint.Name,
		Stage:    stage,
		Reason:   res.Reason,
		Pages:    res.PagesWritten,
	})
}
