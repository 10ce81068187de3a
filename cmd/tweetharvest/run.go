package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tweetharvest/pkg/harvest"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/twitter"
	"tweetharvest/pkg/ui"
	"tweetharvest/pkg/ui/tui"
)

var (
	// Run command flags
	queriesFile    string
	runOutput      string
	runFormat      string
	tokenFile      string
	checkpointFlag string
	flushEvery     int
	keepSnapshots  int
	maxRetries     int
	extraParams    map[string]string
	failureLog     string
	failureBackend string
	metricsAddr    string
	baseURL        string
	apiTimeout     time.Duration
	useTUI         bool
	notify         bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <endpoint>",
	Short: "Harvest every key in a query file from one endpoint",
	Long: `Page through every key in the query file against one endpoint and write
each page to <output>/<endpoint>/<key>_<page>.json.

Endpoints:
  search        full-archive search, one query per line
  conversation  every reply in a conversation, one conversation id per line
  timeline      a user's tweets, one numeric account id per line

Completed keys are checkpointed. Rerunning the same command after an
interruption or failure only fetches keys that have not completed yet.`,
	Example: `  # Full-archive search for each line of queries.txt
  tweetharvest run search --queries queries.txt

  # Narrow the time window and write CSV instead of raw JSON
  tweetharvest run search --queries queries.txt --param start_time=2021-01-01T00:00:00Z --format csv

  # Timelines with a live dashboard and metrics on :2112
  tweetharvest run timeline --queries ids.txt --tui --metrics-addr :2112`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: twitter.EndpointNames(),
	RunE:      runHarvest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&queriesFile, "queries", "i", "", "file with one key per line (required)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output base directory (default ./json)")
	runCmd.Flags().StringVar(&runFormat, "format", "", "artifact format: json or csv")
	addAPIFlags(runCmd)
	runCmd.Flags().StringVar(&checkpointFlag, "checkpoint-dir", "", "checkpoint directory (default per-user data directory)")
	runCmd.Flags().IntVar(&flushEvery, "flush-every", 0, "write a checkpoint after this many completed keys")
	runCmd.Flags().IntVar(&keepSnapshots, "keep-checkpoints", 0, "prune all but this many checkpoint snapshots (0 keeps all)")
	runCmd.Flags().StringToStringVar(&extraParams, "param", nil, "extra request parameter, e.g. --param start_time=2021-01-01T00:00:00Z")
	runCmd.Flags().StringVar(&failureLog, "failure-log", "", "failure log path")
	runCmd.Flags().StringVar(&failureBackend, "failure-backend", "", "failure log backend: jsonl or sqlite")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "show a live dashboard instead of the progress line")
	runCmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when the batch ends")
	_ = runCmd.MarkFlagRequired("queries")
}

// addAPIFlags registers the flags shared by every command that calls the API
func addAPIFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&tokenFile, "token-file", "", "file holding the bearer token on its first line")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL")
	cmd.Flags().DurationVar(&apiTimeout, "timeout", 0, "per-request timeout")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retries per request before giving up")
}

// apiFlags collects the shared API flags the user actually set
func apiFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, v interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = v
		}
	}
	set("token-file", tokenFile)
	set("base-url", baseURL)
	set("timeout", apiTimeout)
	set("max-retries", maxRetries)
	return flags
}

// runFlags collects the flags the user actually set
func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := apiFlags(cmd)
	set := func(name string, v interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = v
		}
	}
	set("output", runOutput)
	set("format", runFormat)
	set("checkpoint-dir", checkpointFlag)
	set("flush-every", flushEvery)
	set("keep-checkpoints", keepSnapshots)
	set("failure-log", failureLog)
	set("failure-backend", failureBackend)
	set("metrics-addr", metricsAddr)
	if len(extraParams) > 0 {
		flags["params"] = extraParams
	}
	return flags
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ep, err := twitter.LookupEndpoint(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(runFlags(cmd))
	if err != nil {
		return err
	}

	keys, err := harvest.ReadKeys(queriesFile)
	if err != nil {
		return err
	}
	cred, err := resolveToken(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var dashboard *tui.TUI
	var display *ui.ProgressDisplay
	var onWait waitObserver
	if useTUI {
		dashboard = tui.NewTUI(cancel)
		l, err := logger.NewWithOutput(&cfg.Logging, dashboard.LogWriter())
		if err != nil {
			return err
		}
		logger.SetLogger(l)
		onWait = dashboard.RateLimitWait
	} else if !quiet {
		ui.PrintBanner()
		display = ui.NewProgressDisplay(os.Stderr, verbose)
		onWait = display.RateLimitWait
	}

	log := logger.GetLogger()
	rec := metrics.New()
	b, err := newBatch(cfg, ep, cred.Token, rec, log, onWait)
	if err != nil {
		return err
	}
	defer b.Close()

	switch {
	case dashboard != nil:
		b.orch.SetProgress(dashboard)
	case display != nil:
		b.orch.SetProgress(display)
	}

	log.InfoWithFields("Starting harvest", map[string]interface{}{
		"run_id":       b.runID,
		"endpoint":     ep.Name,
		"keys":         len(keys),
		"token_source": cred.Source,
		"output":       b.artifacts.GetOutputDir(),
		"checkpoints":  b.store.Dir(),
	})

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()

	var sum harvest.Summary
	g.Go(func() error {
		defer stopMetrics()
		if dashboard != nil {
			defer dashboard.Stop()
		}
		var err error
		sum, err = b.orch.RunBatch(gctx, keys)
		return err
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			log.WithField("addr", cfg.Metrics.Addr).Info("Serving metrics")
			return rec.Serve(metricsCtx, cfg.Metrics.Addr)
		})
	}
	if dashboard != nil {
		g.Go(dashboard.Start)
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if !quiet {
		printSummary(sum)
	}
	if notify {
		notifySummary(ui.NewNotifier(), ep.Name, sum)
	}
	if sum.Interrupted {
		return errInterrupted
	}
	return nil
}

// printSummary prints the end-of-batch report
func printSummary(sum harvest.Summary) {
	ui.PrintHighlight("\n[BATCH SUMMARY]")
	ui.PrintInfo("Run", sum.RunID)
	ui.PrintInfo("Keys", fmt.Sprintf("%d (%d duplicates dropped)", sum.Keys, sum.Duplicates))
	ui.PrintInfo("Completed", fmt.Sprintf("%d", sum.Completed))
	ui.PrintInfo("Skipped", fmt.Sprintf("%d already complete", sum.Skipped))
	ui.PrintInfo("Pages written", fmt.Sprintf("%d of %d fetched", sum.Written, sum.Pages))
	ui.PrintInfo("Requests", fmt.Sprintf("%d", sum.Requests))
	ui.PrintInfo("Duration", sum.Duration.Round(time.Second).String())
	if sum.Snapshot != "" {
		ui.PrintInfo("Checkpoint", sum.Snapshot)
	}

	if failed := sum.FailedKeys(); len(failed) > 0 {
		ui.PrintWarning(fmt.Sprintf("%d keys failed", len(failed)), strings.Join(truncateKeys(failed, 10), ", "))
		ui.PrintInfo("Retry", "rerun the same command; completed keys are skipped")
	}
}

func notifySummary(n *ui.Notifier, endpoint string, sum harvest.Summary) {
	title := "tweetharvest " + endpoint
	msg := fmt.Sprintf("%d completed, %d failed, %d pages", sum.Completed, sum.Failed, sum.Written)
	if sum.Failed > 0 || sum.Interrupted {
		n.SendError(title, msg)
		return
	}
	n.SendSuccess(title, msg)
}

func truncateKeys(keys []string, n int) []string {
	if len(keys) <= n {
		return keys
	}
	out := append([]string{}, keys[:n]...)
	return append(out, fmt.Sprintf("and %d more", len(keys)-n))
}
