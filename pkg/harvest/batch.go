package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tweetharvest/pkg/checkpoint"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/twitter"
)

// DefaultFlushEvery is how many completions are batched into one snapshot
const DefaultFlushEvery = 15

// BatchConfig controls a batch
type BatchConfig struct {
	// Params are the base request parameters shared by every key
	Params twitter.Params
	// FlushEvery writes a snapshot after this many completions
	FlushEvery int
	// KeepSnapshots prunes older snapshots after the final flush; zero keeps all
	KeepSnapshots int
}

// Summary reports what a batch did
type Summary struct {
	RunID       string
	Keys        int
	Duplicates  int
	Skipped     int
	Completed   int
	Failed      int
	Interrupted bool
	Requests    int
	Pages       int
	Written     int
	Snapshot    string
	Duration    time.Duration
	Results     []RunResult
}

// FailedKeys returns the keys that ended Failed, in processing order
func (s Summary) FailedKeys() []string {
	var keys []string
	for _, r := range s.Results {
		if r.Terminal == Failed {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Orchestrator runs a list of keys through a Runner, skipping keys a
// previous run already completed and persisting progress as it goes.
type Orchestrator struct {
	runner   *Runner
	store    *checkpoint.Store
	cfg      BatchConfig
	runID    string
	logger   logger.Logger
	metrics  *metrics.Recorder
	progress Progress
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(runner *Runner, store *checkpoint.Store, cfg BatchConfig, runID string, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	return &Orchestrator{
		runner:   runner,
		store:    store,
		cfg:      cfg,
		runID:    runID,
		logger:   log,
		progress: nopProgress{},
		now:      time.Now,
	}
}

// SetMetrics attaches a metrics recorder
func (o *Orchestrator) SetMetrics(m *metrics.Recorder) {
	o.metrics = m
}

// SetProgress attaches a progress observer to the batch and its runner
func (o *Orchestrator) SetProgress(p Progress) {
	if p == nil {
		p = nopProgress{}
	}
	o.progress = p
	o.runner.SetProgress(p)
}

// RunBatch processes keys in order. Per-key failures are reported in the
// summary; the returned error is reserved for conditions that stop the
// batch before it starts or lose its progress: an invalid parameter
// contract, an unreadable checkpoint or a failed final flush.
func (o *Orchestrator) RunBatch(ctx context.Context, keys []string) (sum Summary, err error) {
	start := o.now()
	sum.RunID = o.runID
	ep := o.runner.Endpoint()

	if err := ep.Validate(o.cfg.Params); err != nil {
		return sum, err
	}

	done, err := o.store.Load()
	if err != nil {
		return sum, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	unique, dupes := Dedupe(keys)
	sum.Keys = len(unique)
	sum.Duplicates = dupes

	o.logger.InfoWithFields("Batch started", map[string]interface{}{
		"run_id":     o.runID,
		"endpoint":   ep.Name,
		"keys":       len(unique),
		"duplicates": dupes,
		"completed":  done.Cardinality(),
	})
	o.progress.BatchStarted(o.runID, ep.Name, len(unique))

	defer func() {
		path, ferr := o.store.Flush()
		if ferr != nil {
			err = errors.Join(err, fmt.Errorf("failed to flush checkpoint: %w", ferr))
		} else {
			sum.Snapshot = path
			o.metrics.IncCheckpoint()
			if _, perr := o.store.Prune(o.cfg.KeepSnapshots); perr != nil {
				o.logger.WithError(perr).Warn("Failed to prune old checkpoints")
			}
		}

		sum.Duration = o.now().Sub(start)
		o.logger.InfoWithFields("Batch finished", map[string]interface{}{
			"run_id":      o.runID,
			"completed":   sum.Completed,
			"failed":      sum.Failed,
			"skipped":     sum.Skipped,
			"interrupted": sum.Interrupted,
			"requests":    sum.Requests,
			"written":     sum.Written,
			"duration":    sum.Duration.String(),
		})
		o.progress.BatchFinished(sum)
	}()

	sinceFlush := 0
	for i, key := range unique {
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}
		if o.store.IsCompleted(key) {
			sum.Skipped++
			o.progress.KeySkipped(key)
			continue
		}

		o.logger.DebugWithFields("Processing key", map[string]interface{}{
			"key":      key,
			"position": i + 1,
			"total":    len(unique),
		})

		o.progress.KeyStarted(key, i+1, len(unique))
		res := o.runner.Run(ctx, key, o.cfg.Params)
		o.progress.KeyFinished(res)
		sum.Results = append(sum.Results, res)
		sum.Requests += res.Requests
		sum.Pages += res.PagesFetched
		sum.Written += res.PagesWritten

		switch res.Terminal {
		case Completed:
			sum.Completed++
			o.store.MarkCompleted(key)
			sinceFlush++
			if sinceFlush >= o.cfg.FlushEvery {
				sinceFlush = 0
				o.flush()
			}
		case Failed:
			sum.Failed++
		case Interrupted:
			sum.Interrupted = true
		}
		if sum.Interrupted {
			break
		}
	}

	return sum, nil
}

// flush writes an intermediate snapshot; errors are logged because the
// final flush will try again.
func (o *Orchestrator) flush() {
	path, err := o.store.Flush()
	if err != nil {
		o.logger.WithError(err).Error("Failed to save checkpoint")
		return
	}
	o.metrics.IncCheckpoint()
	o.logger.DebugWithFields("Checkpoint flushed", map[string]interface{}{
		"path":      path,
		"completed": o.store.Len(),
	})
}
