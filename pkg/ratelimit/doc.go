// Package ratelimit spaces requests to the upstream API.
//
// Each endpoint class (search, timeline, lookup) has its own minimum
// interval between consecutive requests. The Registry keeps one limiter
// per class and blocks callers until that interval has passed since the
// previous request of the same class. Requests of different classes never
// delay each other.
//
// Time is read through a Clock so tests can run without real sleeps:
//
//	clock := ratelimit.NewManualClock(time.Unix(0, 0))
//	reg := ratelimit.NewRegistry(clock, ratelimit.DefaultIntervals())
//
//	_ = reg.Wait(ctx, ratelimit.ClassSearch) // returns at once
//	_ = reg.Wait(ctx, ratelimit.ClassSearch) // advances clock by 3s
package ratelimit
