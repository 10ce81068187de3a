// Package harvest runs batches of query keys against one endpoint.
//
// A Runner pages through a single key and writes every non-empty page as an
// artifact. An Orchestrator feeds keys to the Runner in order, skips keys a
// previous run completed and records completions in a checkpoint store that
// is flushed periodically and once more when the batch ends, however it ends.
// Keys that fail are logged to the failure log and retried on the next run.
//
// Typical usage:
//
//	runner := harvest.NewRunner(ep, driver, artifacts, failures, log)
//	orch := harvest.NewOrchestrator(runner, store, harvest.BatchConfig{Params: params}, runID, log)
//	summary, err := orch.RunBatch(ctx, keys)
package harvest
