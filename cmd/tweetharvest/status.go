package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tweetharvest/pkg/checkpoint"
	"tweetharvest/pkg/config"
	"tweetharvest/pkg/failurelog"
	"tweetharvest/pkg/harvest"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/twitter"
	"tweetharvest/pkg/ui"
)

var (
	statusCheckpointDir string
	statusQueries       string
	pruneKeep           int
	failuresEndpoint    string
	failuresRun         string
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and prune checkpoint snapshots",
}

var checkpointStatusCmd = &cobra.Command{
	Use:       "status [endpoint]",
	Short:     "Show snapshots and completed keys per endpoint",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: twitter.EndpointNames(),
	RunE:      runCheckpointStatus,
}

var checkpointPruneCmd = &cobra.Command{
	Use:       "prune <endpoint>",
	Short:     "Delete all but the newest snapshots of an endpoint",
	Args:      cobra.ExactArgs(1),
	ValidArgs: twitter.EndpointNames(),
	RunE:      runCheckpointPrune,
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect the failure log",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys that failed",
	Long: `List the keys recorded in the failure log with the stage and reason they
failed at. Failed keys are retried automatically when the batch is rerun.`,
	Args: cobra.NoArgs,
	RunE: runFailuresList,
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointStatusCmd)
	checkpointCmd.AddCommand(checkpointPruneCmd)
	checkpointCmd.PersistentFlags().StringVar(&statusCheckpointDir, "checkpoint-dir", "", "checkpoint directory (default per-user data directory)")
	checkpointStatusCmd.Flags().StringVarP(&statusQueries, "queries", "q", "", "query file to count pending keys against")
	checkpointPruneCmd.Flags().IntVar(&pruneKeep, "keep", 1, "number of snapshots to keep")

	rootCmd.AddCommand(failuresCmd)
	failuresCmd.AddCommand(failuresListCmd)
	failuresListCmd.Flags().StringVar(&failuresEndpoint, "endpoint", "", "only show this endpoint")
	failuresListCmd.Flags().StringVar(&failuresRun, "run", "", "only show this run id")
	failuresListCmd.Flags().StringVar(&failureLog, "failure-log", "", "failure log path")
	failuresListCmd.Flags().StringVar(&failureBackend, "failure-backend", "", "failure log backend: jsonl or sqlite")
}

func checkpointFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("checkpoint-dir") {
		flags["checkpoint-dir"] = statusCheckpointDir
	}
	return flags
}

// openCheckpoints opens the snapshot store of endpoint read-only
func openCheckpoints(cfg *config.Config, endpoint string) (*checkpoint.Store, error) {
	dir, err := checkpointDir(cfg, endpoint)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewStore(dir, "inspect", logger.NewNopLogger())
}

// statusRow summarizes the snapshots of one endpoint
type statusRow struct {
	endpoint  string
	snapshots int
	completed string
	pending   string
	latest    string
	dir       string
}

// checkpointStatus reads the snapshots of endpoint. When keys is non-nil the
// row also counts how many of them are still to be harvested.
func checkpointStatus(cfg *config.Config, endpoint string, keys []string) (statusRow, error) {
	row := statusRow{endpoint: endpoint, completed: "-", pending: "-", latest: "-"}
	store, err := openCheckpoints(cfg, endpoint)
	if err != nil {
		return row, err
	}
	row.dir = store.Dir()

	infos, err := store.List()
	if err != nil {
		return row, err
	}
	row.snapshots = len(infos)

	set, err := store.Load()
	if err != nil {
		row.completed = "unreadable"
		return row, nil
	}
	if len(infos) > 0 {
		row.completed = fmt.Sprintf("%d", set.Cardinality())
		row.latest = infos[len(infos)-1].Time.Local().Format(time.DateTime)
	}
	if keys != nil {
		row.pending = fmt.Sprintf("%d", len(store.Pending(keys)))
	}
	return row, nil
}

func runCheckpointStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(checkpointFlags(cmd))
	if err != nil {
		return err
	}

	endpoints := twitter.EndpointNames()
	if len(args) == 1 {
		ep, err := twitter.LookupEndpoint(args[0])
		if err != nil {
			return err
		}
		endpoints = []string{ep.Name}
	}

	var keys []string
	if statusQueries != "" {
		if keys, err = harvest.ReadKeys(statusQueries); err != nil {
			return err
		}
		if keys == nil {
			keys = []string{}
		}
	}

	w := tabwriter.NewWriter(ui.Output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tSNAPSHOTS\tCOMPLETED\tPENDING\tLATEST\tDIRECTORY")
	for _, name := range endpoints {
		row, err := checkpointStatus(cfg, name, keys)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			row.endpoint, row.snapshots, row.completed, row.pending, row.latest, row.dir)
	}
	return w.Flush()
}

func runCheckpointPrune(cmd *cobra.Command, args []string) error {
	ep, err := twitter.LookupEndpoint(args[0])
	if err != nil {
		return err
	}
	if pruneKeep < 1 {
		return fmt.Errorf("--keep must be at least 1")
	}

	cfg, err := loadConfig(checkpointFlags(cmd))
	if err != nil {
		return err
	}
	store, err := openCheckpoints(cfg, ep.Name)
	if err != nil {
		return err
	}

	removed, err := store.Prune(pruneKeep)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Removed %d %s snapshots", removed, ep.Name))
	return nil
}

func runFailuresList(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("failure-log") {
		flags["failure-log"] = failureLog
	}
	if cmd.Flags().Changed("failure-backend") {
		flags["failure-backend"] = failureBackend
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	entries, err := failurelog.ReadAll(cfg.FailureLog.Backend, cfg.FailureLog.Path)
	if err != nil {
		return err
	}
	entries = filterFailures(entries, failuresEndpoint, failuresRun)
	if len(entries) == 0 {
		ui.PrintSuccess("No failures recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tENDPOINT\tKEY\tSTAGE\tPAGES\tREASON")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Endpoint, e.Key, e.Stage, e.Pages, e.Reason)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	ui.PrintInfo("Total", fmt.Sprintf("%d", len(entries)))
	return nil
}

// filterFailures keeps the entries matching the non-empty filters
func filterFailures(entries []failurelog.Entry, endpoint, runID string) []failurelog.Entry {
	var out []failurelog.Entry
	for _, e := range entries {
		if endpoint != "" && e.Endpoint != endpoint {
			continue
		}
		if runID != "" && e.RunID != runID {
			continue
		}
		out = append(out, e)
	}
	return out
}
