package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	errs "tweetharvest/pkg/errors"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/ratelimit"
	"tweetharvest/pkg/retry"
	"tweetharvest/pkg/twitter"
)

// Fetcher issues a single request
type Fetcher interface {
	Fetch(ctx context.Context, path string, params twitter.Params) twitter.Outcome
}

// Limiter paces requests per endpoint class
type Limiter interface {
	Wait(ctx context.Context, class ratelimit.Class) error
}

// State is the position of a Pager in its lifecycle
type State int

const (
	StateStart State = iota
	StateFetching
	StateHasMore
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateFetching:
		return "fetching"
	case StateHasMore:
		return "has_more"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further pages can be produced
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Query is everything needed to page through one key
type Query struct {
	Key      string
	Endpoint string
	Class    ratelimit.Class
	Path     string
	// Params are the first-page parameters; any token in them is ignored
	Params     twitter.Params
	TokenParam string
	// MaxPages caps successful pages; zero means unlimited
	MaxPages int
}

// NewQuery builds the query for key against ep using base parameters
func NewQuery(ep twitter.Endpoint, key string, base twitter.Params) Query {
	return Query{
		Key:        key,
		Endpoint:   ep.Name,
		Class:      ep.Class,
		Path:       ep.Path(key),
		Params:     ep.QueryParams(key, base),
		TokenParam: ep.TokenParam,
		MaxPages:   ep.MaxPages,
	}
}

// Page is one successful response
type Page struct {
	// Index is the 1-based position of the page within its query
	Index       int
	Records     []json.RawMessage
	NextToken   string
	ResultCount int
	Body        []byte
	StatusCode  int
}

// Empty reports whether the page carries no records
func (p Page) Empty() bool { return len(p.Records) == 0 }

// Config controls retry behaviour and instrumentation
type Config struct {
	// MaxRetries is how many times one request is reissued before the query fails
	MaxRetries int
	Backoff    retry.BackoffStrategy
	// Sleep waits out backoff delays; defaults to retry.Wait
	Sleep   retry.SleepFunc
	Logger  logger.Logger
	Metrics *metrics.Recorder
}

// DefaultConfig returns the standard driver configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: retry.DefaultMaxRetries,
		Backoff:    retry.DefaultExponentialBackoff(),
		Sleep:      retry.Wait,
		Logger:     logger.GetLogger(),
	}
}

// Driver produces Pagers that walk queries to exhaustion
type Driver struct {
	fetcher Fetcher
	limiter Limiter
	cfg     Config
}

// NewDriver creates a driver
func NewDriver(fetcher Fetcher, limiter Limiter, cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Wait
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Driver{fetcher: fetcher, limiter: limiter, cfg: cfg}
}

// Paginate returns a lazy Pager for q. Nothing is fetched until Next.
func (d *Driver) Paginate(q Query) *Pager {
	return &Pager{
		driver: d,
		query:  q,
		state:  StateStart,
		log: d.cfg.Logger.WithFields(map[string]interface{}{
			"endpoint": q.Endpoint,
			"key":      q.Key,
		}),
	}
}

// Pager walks the pages of one query. Use it like bufio.Scanner:
//
//	p := driver.Paginate(q)
//	for p.Next(ctx) {
//		handle(p.Page())
//	}
//	if err := p.Err(); err != nil { ... }
//
// A Pager is single use and not safe for concurrent use.
type Pager struct {
	driver *Driver
	query  Query
	log    logger.Logger

	state    State
	token    string
	page     Page
	pages    int
	requests int
	retries  int
	err      error
}

// Next fetches the next page. It returns false once the query is DONE or
// FAILED; Err distinguishes the two.
func (p *Pager) Next(ctx context.Context) bool {
	if p.state.Terminal() {
		return false
	}
	if p.state == StateStart {
		p.token = ""
	}
	p.state = StateFetching

	params := p.query.Params.Without(p.query.TokenParam)
	if p.token != "" {
		params = params.With(p.query.TokenParam, p.token)
	}

	out, err := p.fetchWithRetry(ctx, params)
	if err != nil {
		p.fail(ctx, err)
		return false
	}

	resp := out.Response
	p.pages++
	p.page = Page{
		Index:       p.pages,
		Records:     resp.Data,
		NextToken:   resp.Meta.NextToken,
		ResultCount: resp.Meta.ResultCount,
		Body:        out.Body,
		StatusCode:  out.StatusCode,
	}
	p.driver.cfg.Metrics.IncPage(p.query.Endpoint)

	switch {
	case p.page.Empty() && p.pages == 1:
		p.log.Debug("query returned no results")
		p.finish()
	case p.page.NextToken == "":
		p.finish()
	case p.query.MaxPages > 0 && p.pages >= p.query.MaxPages:
		p.log.InfoWithFields("page cap reached with results remaining", map[string]interface{}{
			"pages": p.pages,
			"cap":   p.query.MaxPages,
		})
		p.finish()
	default:
		p.token = p.page.NextToken
		p.state = StateHasMore
	}

	return true
}

func (p *Pager) fetchWithRetry(ctx context.Context, params twitter.Params) (twitter.Outcome, error) {
	var (
		out       twitter.Outcome
		retryable bool
	)

	op := func() error {
		retryable = false
		if err := p.driver.limiter.Wait(ctx, p.query.Class); err != nil {
			return err
		}
		p.requests++
		out = p.driver.fetcher.Fetch(ctx, p.query.Path, params)
		p.driver.cfg.Metrics.IncRequest(p.query.Endpoint, out.Kind.String())

		switch out.Kind {
		case twitter.OutcomeOK:
			return nil
		case twitter.OutcomeRetryable:
			retryable = true
			return out.Err
		default:
			if out.Err != nil {
				return out.Err
			}
			return errors.New("request failed")
		}
	}

	err := retry.Do(ctx, op, &retry.Config{
		MaxAttempts: retry.AttemptsForRetries(p.driver.cfg.MaxRetries),
		Backoff:     p.driver.cfg.Backoff,
		RetryIf:     func(error) bool { return retryable },
		Sleep:       p.driver.cfg.Sleep,
		Logger:      p.log,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			p.retries++
			p.driver.cfg.Metrics.IncRetry(p.query.Endpoint)
		},
	})
	return out, err
}

func (p *Pager) finish() {
	p.state = StateDone
	p.token = ""
}

func (p *Pager) fail(ctx context.Context, err error) {
	p.state = StateFailed
	p.token = ""

	if ctxErr := ctx.Err(); ctxErr != nil {
		p.err = fmt.Errorf("pagination of %q interrupted after %d pages: %w", p.query.Key, p.pages, ctxErr)
		p.log.InfoWithFields("pagination interrupted", map[string]interface{}{
			"pages": p.pages,
		})
		return
	}

	p.err = fmt.Errorf("pagination of %q failed after %d pages: %w", p.query.Key, p.pages, err)
	p.log.WarnWithFields("pagination failed", map[string]interface{}{
		"pages":    p.pages,
		"requests": p.requests,
		"error":    err.Error(),
	})
}

// Page returns the page produced by the last successful Next
func (p *Pager) Page() Page { return p.page }

// State returns the current state
func (p *Pager) State() State { return p.state }

// Err returns the failure reason once the pager is FAILED
func (p *Pager) Err() error { return p.err }

// Interrupted reports whether the pager stopped because its context ended
func (p *Pager) Interrupted() bool {
	return p.err != nil && (errors.Is(p.err, context.Canceled) || errors.Is(p.err, context.DeadlineExceeded))
}

// Reason returns a short description of the failure, empty unless FAILED
func (p *Pager) Reason() string {
	if p.err == nil {
		return ""
	}
	var apiErr *errs.Error
	if errors.As(p.err, &apiErr) {
		return apiErr.Error()
	}
	return p.err.Error()
}

// Pages returns how many successful pages were produced
func (p *Pager) Pages() int { return p.pages }

// Requests returns how many requests were issued, retries included
func (p *Pager) Requests() int { return p.requests }

// Retries returns how many requests were reissued
func (p *Pager) Retries() int { return p.retries }

// Token returns the continuation token that the next request will carry
func (p *Pager) Token() string { return p.token }
