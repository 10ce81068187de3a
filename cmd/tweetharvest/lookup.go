package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tweetharvest/pkg/harvest"
	"tweetharvest/pkg/logger"
	"tweetharvest/pkg/metrics"
	"tweetharvest/pkg/ui"
)

var (
	handlesFile      string
	keysOut          string
	conversationsDir string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Resolve account handles to the numeric ids timelines need",
	Long: `Resolve a file of account handles, one per line, to numeric account ids
and write them as a key file for 'tweetharvest run timeline'.

Handles may carry a leading @. Malformed handles are reported and skipped;
handles the API does not know are reported as missing.`,
	Example: `  tweetharvest lookup --handles handles.txt --out ids.txt
  tweetharvest run timeline --queries ids.txt`,
	Args: cobra.NoArgs,
	RunE: runLookup,
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Collect conversation ids from harvested pages",
	Long: `Scan the JSON pages below a directory, usually the output of a search
run, and write every distinct conversation id they reference as a key file
for 'tweetharvest run conversation'.`,
	Example: `  tweetharvest conversations --from json/search --out conversations.txt
  tweetharvest run conversation --queries conversations.txt`,
	Args: cobra.NoArgs,
	RunE: runConversations,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(conversationsCmd)

	lookupCmd.Flags().StringVar(&handlesFile, "handles", "", "file with one handle per line (required)")
	lookupCmd.Flags().StringVar(&keysOut, "out", "", "key file to write (required)")
	addAPIFlags(lookupCmd)
	_ = lookupCmd.MarkFlagRequired("handles")
	_ = lookupCmd.MarkFlagRequired("out")

	conversationsCmd.Flags().StringVar(&conversationsDir, "from", "", "directory of harvested pages (required)")
	conversationsCmd.Flags().StringVar(&keysOut, "out", "", "key file to write (required)")
	_ = conversationsCmd.MarkFlagRequired("from")
	_ = conversationsCmd.MarkFlagRequired("out")
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(apiFlags(cmd))
	if err != nil {
		return err
	}

	handles, err := harvest.ReadKeys(handlesFile)
	if err != nil {
		return err
	}
	cred, err := resolveToken(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetLogger().WithField("command", "lookup")
	a, err := newAPI(cfg, cred.Token, metrics.New(), log, nil)
	if err != nil {
		return err
	}

	resolver := harvest.NewResolver(a.client, a.limiter, a.retryConfig(cfg, log), log)
	res, err := resolver.Resolve(ctx, handles)
	if err != nil {
		return err
	}

	if err := harvest.WriteKeys(keysOut, res.IDs()); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Resolved %d of %d handles to %s", len(res.Users), len(handles), keysOut))
	if len(res.Invalid) > 0 {
		ui.PrintWarning(fmt.Sprintf("%d malformed handles skipped", len(res.Invalid)), strings.Join(truncateKeys(res.Invalid, 10), ", "))
	}
	if len(res.Missing) > 0 {
		ui.PrintWarning(fmt.Sprintf("%d handles not found", len(res.Missing)), strings.Join(truncateKeys(res.Missing, 10), ", "))
	}
	return nil
}

func runConversations(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(nil); err != nil {
		return err
	}

	keys, err := harvest.ConversationKeys(conversationsDir, logger.GetLogger().WithField("command", "conversations"))
	if err != nil {
		return err
	}
	if err := harvest.WriteKeys(keysOut, keys); err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Wrote %d conversation ids to %s", len(keys), keysOut))
	return nil
}
