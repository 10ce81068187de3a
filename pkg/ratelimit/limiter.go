package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Class identifies an endpoint family that shares a request budget
type Class string

const (
	ClassSearch   Class = "search"
	ClassTimeline Class = "timeline"
	ClassLookup   Class = "lookup"
)

// FallbackInterval applies to classes that were never configured.
const FallbackInterval = 3 * time.Second

// DefaultIntervals returns the documented per-class request spacing
func DefaultIntervals() map[Class]time.Duration {
	return map[Class]time.Duration{
		ClassSearch:   3 * time.Second,
		ClassTimeline: time.Second,
		ClassLookup:   2500 * time.Millisecond,
	}
}

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Wait blocks until the rate limit allows another request
	Wait(ctx context.Context) error
	// Reset forgets previous requests
	Reset()
}

// IntervalLimiter enforces a minimum spacing between requests.
// It wraps a burst-1 token bucket from golang.org/x/time/rate and reads
// time from a Clock instead of the wall clock.
type IntervalLimiter struct {
	interval time.Duration
	clock    Clock
	mu       sync.Mutex
	lim      *rate.Limiter
}

// NewIntervalLimiter creates a limiter allowing one request per interval
func NewIntervalLimiter(interval time.Duration, clock Clock) *IntervalLimiter {
	if clock == nil {
		clock = RealClock()
	}
	return &IntervalLimiter{
		interval: interval,
		clock:    clock,
		lim:      newRateLimiter(interval),
	}
}

func newRateLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Interval returns the configured spacing
func (l *IntervalLimiter) Interval() time.Duration { return l.interval }

// Wait blocks until interval has passed since the previous request
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := l.clock.Now()
	r := l.lim.ReserveN(now, 1)
	l.mu.Unlock()

	if !r.OK() {
		return fmt.Errorf("rate limiter cannot satisfy request with interval %s", l.interval)
	}

	delay := r.DelayFrom(now)
	if err := l.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

// Reset clears the limiter so the next request is not delayed
func (l *IntervalLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lim = newRateLimiter(l.interval)
}

// Registry holds one limiter per endpoint class
type Registry struct {
	clock     Clock
	intervals map[Class]time.Duration
	mu        sync.Mutex
	limiters  map[Class]*IntervalLimiter
	observer  func(Class, time.Duration)
}

// NewRegistry creates a registry with the given per-class intervals
func NewRegistry(clock Clock, intervals map[Class]time.Duration) *Registry {
	if clock == nil {
		clock = RealClock()
	}
	copied := make(map[Class]time.Duration, len(intervals))
	for class, d := range intervals {
		copied[class] = d
	}
	return &Registry{
		clock:     clock,
		intervals: copied,
		limiters:  make(map[Class]*IntervalLimiter),
	}
}

// SetObserver registers a callback invoked with the time each Wait blocked
func (r *Registry) SetObserver(fn func(Class, time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// Clock returns the registry's time source
func (r *Registry) Clock() Clock { return r.clock }

// Interval returns the spacing used for class
func (r *Registry) Interval(class Class) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.intervals[class]; ok {
		return d
	}
	return FallbackInterval
}

// Wait blocks until a request of the given class may be issued.
// It returns an error only if ctx is done before that.
func (r *Registry) Wait(ctx context.Context, class Class) error {
	l, observer := r.limiter(class)

	start := r.clock.Now()
	err := l.Wait(ctx)
	if observer != nil {
		observer(class, r.clock.Now().Sub(start))
	}
	return err
}

// Reset clears the state of every class
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.limiters {
		l.Reset()
	}
}

func (r *Registry) limiter(class Class) (*IntervalLimiter, func(Class, time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[class]
	if !ok {
		interval, found := r.intervals[class]
		if !found {
			interval = FallbackInterval
		}
		l = NewIntervalLimiter(interval, r.clock)
		r.limiters[class] = l
	}
	return l, r.observer
}
