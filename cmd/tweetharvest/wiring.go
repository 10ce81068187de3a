package main

import (
	"fmt"
	"path/filepath"
	"time"

	"tweetharvest/pkg/auth"
	"tweetharvest/pkg/checkpoint"
	"tweetharvest/pkg/config"
	"tweetharvest/pkg/failurelog"
	"tweetharvest/pkg/harvest"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/pagination"
	"tweetharvest/pkg/ratelimit"
	"tweetharvest/pkg/retry"
	"tweetharvest/pkg/storage"
	"tweetharvest/pkg/twitter"
)

// resolveToken finds the bearer token for cfg
func resolveToken(cfg *config.Config) (*auth.Credential, error) {
	manager, err := auth.NewManager(cfg.API.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	cred, err := manager.Resolve(auth.DefaultName)
	if err != nil {
		return nil, fmt.Errorf("no bearer token (run 'tweetharvest auth guide'): %w", err)
	}
	return cred, nil
}

// rateIntervals maps the configured spacing onto limiter classes
func rateIntervals(cfg *config.Config) map[ratelimit.Class]time.Duration {
	return map[ratelimit.Class]time.Duration{
		ratelimit.ClassSearch:   cfg.RateLimit.SearchInterval,
		ratelimit.ClassTimeline: cfg.RateLimit.TimelineInterval,
		ratelimit.ClassLookup:   cfg.RateLimit.LookupInterval,
	}
}

// checkpointDir returns the snapshot directory for endpoint
func checkpointDir(cfg *config.Config, endpoint string) (string, error) {
	base := cfg.Checkpoint.Directory
	if base == "" {
		var err error
		if base, err = checkpoint.DefaultDir(); err != nil {
			return "", err
		}
	}
	return filepath.Join(base, endpoint), nil
}

// api is the rate-limited client shared by the commands that call the API
type api struct {
	client  *twitter.Client
	limiter *ratelimit.Registry
	backoff retry.BackoffStrategy
}

// waitObserver is told about every pause the rate limiter imposes
type waitObserver func(class string, wait time.Duration)

func newAPI(cfg *config.Config, token string, rec *metrics.Recorder, log logger.Logger, onWait waitObserver) (*api, error) {
	backoff, err := retry.NewBackoff(cfg.Retry.Strategy, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, cfg.Retry.Jitter)
	if err != nil {
		return nil, err
	}

	client := twitter.NewClient(cfg.API.BaseURL, token, cfg.API.Timeout, log)
	if cfg.API.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.API.UserAgent)
	}

	limiter := ratelimit.NewRegistry(ratelimit.RealClock(), rateIntervals(cfg))
	limiter.SetObserver(func(class ratelimit.Class, wait time.Duration) {
		rec.ObserveRateLimitWait(string(class), wait)
		logger.LogRateLimit(log, string(class), wait)
		if onWait != nil {
			onWait(string(class), wait)
		}
	})

	return &api{client: client, limiter: limiter, backoff: backoff}, nil
}

// retryConfig is the per-request retry policy for calls outside a Pager
func (a *api) retryConfig(cfg *config.Config, log logger.Logger) retry.Config {
	return retry.Config{
		MaxAttempts: retry.AttemptsForRetries(cfg.Retry.MaxRetries),
		Backoff:     a.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Sleep:       retry.Wait,
		Logger:      log,
	}
}

// batch holds everything one run of an endpoint needs
type batch struct {
	api       *api
	endpoint  twitter.Endpoint
	runID     string
	artifacts *storage.Manager
	failures  *failurelog.Log
	store     *checkpoint.Store
	orch      *harvest.Orchestrator
}

func newBatch(cfg *config.Config, ep twitter.Endpoint, token string, rec *metrics.Recorder, log logger.Logger, onWait waitObserver) (*batch, error) {
	a, err := newAPI(cfg, token, rec, log, onWait)
	if err != nil {
		return nil, err
	}

	runID := harvest.NewRunID()
	log = log.WithFields(map[string]interface{}{"run_id": runID, "endpoint": ep.Name})

	driver := pagination.NewDriver(a.client, a.limiter, pagination.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		Backoff:    a.backoff,
		Sleep:      retry.Wait,
		Logger:     log,
		Metrics:    rec,
	})

	format, err := storage.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	artifacts, err := storage.NewManager(filepath.Join(cfg.Output.BaseDirectory, ep.Name), format)
	if err != nil {
		return nil, err
	}

	dir, err := checkpointDir(cfg, ep.Name)
	if err != nil {
		return nil, err
	}
	store, err := checkpoint.NewStore(dir, runID, log)
	if err != nil {
		return nil, err
	}

	sink, err := failurelog.Open(cfg.FailureLog.Backend, cfg.FailureLog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	failures := failurelog.NewLog(sink, runID, log)

	runner := harvest.NewRunner(ep, driver, artifacts, failures, log)
	runner.SetMetrics(rec)

	params := ep.DefaultParams().Merge(twitter.ParamsFromMap(cfg.API.Params))
	orch := harvest.NewOrchestrator(runner, store, harvest.BatchConfig{
		Params:        params,
		FlushEvery:    cfg.Checkpoint.FlushEvery,
		KeepSnapshots: cfg.Checkpoint.Keep,
	}, runID, log)
	orch.SetMetrics(rec)

	return &batch{
		api:       a,
		endpoint:  ep,
		runID:     runID,
		artifacts: artifacts,
		failures:  failures,
		store:     store,
		orch:      orch,
	}, nil
}

// Close releases the failure log
func (b *batch) Close() error {
	return b.failures.Close()
}
