package harvest

import (
	"context"
	"fmt"

	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/pagination"
	"tweetharvest/pkg/ratelimit"
	"tweetharvest/pkg/retry"
	"tweetharvest/pkg/twitter"
)

// UserLookup resolves one batch of handles
type UserLookup interface {
	LookupUsers(ctx context.Context, handles []string) ([]twitter.User, []string, error)
}

// Resolution is the outcome of resolving a handle list
type Resolution struct {
	Users []twitter.User
	// Missing handles were well formed but unknown to the API
	Missing []string
	// Invalid handles were rejected before any request
	Invalid []string
}

// IDs returns the numeric account ids in resolution order
func (r Resolution) IDs() []string {
	ids := make([]string, 0, len(r.Users))
	for _, u := range r.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

// Resolver turns account handles into the numeric ids the timeline endpoint needs
type Resolver struct {
	client  UserLookup
	limiter pagination.Limiter
	retry   retry.Config
	logger  logger.Logger
}

// NewResolver creates a resolver. Each batch request waits on the lookup
// class of limiter and is retried per cfg.
func NewResolver(client UserLookup, limiter pagination.Limiter, cfg retry.Config, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	return &Resolver{client: client, limiter: limiter, retry: cfg, logger: log}
}

// Resolve looks up handles in batches of twitter.MaxLookupBatch. Leading
// "@" is stripped and duplicates are dropped. A batch that still fails after
// its retries aborts the resolution.
func (r *Resolver) Resolve(ctx context.Context, handles []string) (Resolution, error) {
	var res Resolution

	var valid []string
	for _, h := range handles {
		clean := twitter.SanitizeHandle(h)
		if !twitter.IsValidHandle(clean) {
			res.Invalid = append(res.Invalid, h)
			continue
		}
		valid = append(valid, clean)
	}
	valid, _ = Dedupe(valid)

	for start := 0; start < len(valid); start += twitter.MaxLookupBatch {
		end := start + twitter.MaxLookupBatch
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		type result struct {
			users   []twitter.User
			missing []string
		}
		cfg := r.retry
		out, err := retry.DoWithResult(ctx, func() (result, error) {
			if err := r.limiter.Wait(ctx, ratelimit.ClassLookup); err != nil {
				return result{}, err
			}
			users, missing, err := r.client.LookupUsers(ctx, batch)
			return result{users: users, missing: missing}, err
		}, &cfg)
		if err != nil {
			return res, fmt.Errorf("looking up handles %d-%d: %w", start+1, end, err)
		}

		res.Users = append(res.Users, out.users...)
		res.Missing = append(res.Missing, out.missing...)
		r.logger.InfoWithFields("Resolved handle batch", map[string]interface{}{
			"batch":    start/twitter.MaxLookupBatch + 1,
			"resolved": len(out.users),
			"missing":  len(out.missing),
		})
	}

	return res, nil
}
