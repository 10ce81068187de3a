package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetharvest/pkg/config"
	"tweetharvest/pkg/failurelog"
	"tweetharvest/pkg/ratelimit"
)

func TestRateIntervals(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit.SearchInterval = 2 * time.Second
	cfg.RateLimit.TimelineInterval = time.Second
	cfg.RateLimit.LookupInterval = 3 * time.Second

	got := rateIntervals(cfg)
	assert.Equal(t, 2*time.Second, got[ratelimit.ClassSearch])
	assert.Equal(t, time.Second, got[ratelimit.ClassTimeline])
	assert.Equal(t, 3*time.Second, got[ratelimit.ClassLookup])
}

func TestCheckpointDir(t *testing.T) {
	cfg := config.DefaultConfig()
	base := t.TempDir()
	cfg.Checkpoint.Directory = base

	dir, err := checkpointDir(cfg, "search")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "search"), dir)
}

func TestAPIFlagsOnlyChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addAPIFlags(cmd)

	assert.Empty(t, apiFlags(cmd))

	require.NoError(t, cmd.Flags().Set("max-retries", "0"))
	require.NoError(t, cmd.Flags().Set("timeout", "5s"))

	flags := apiFlags(cmd)
	assert.Equal(t, 0, flags["max-retries"])
	assert.Equal(t, 5*time.Second, flags["timeout"])
	assert.NotContains(t, flags, "base-url")
}

func TestFilterFailures(t *testing.T) {
	entries := []failurelog.Entry{
		{Key: "a", Endpoint: "search", RunID: "r1"},
		{Key: "b", Endpoint: "timeline", RunID: "r1"},
		{Key: "c", Endpoint: "search", RunID: "r2"},
	}

	assert.Len(t, filterFailures(entries, "", ""), 3)

	got := filterFailures(entries, "search", "")
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, "c", got[1].Key)

	got = filterFailures(entries, "search", "r2")
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Key)

	assert.Empty(t, filterFailures(entries, "conversation", ""))
}

func TestTruncateKeys(t *testing.T) {
	keys := []string{"a", "b", "c"}
	assert.Equal(t, keys, truncateKeys(keys, 3))
	assert.Equal(t, []string{"a", "and 2 more"}, truncateKeys(keys, 1))
	assert.Len(t, keys, 3)
}

func TestCheckpointStatusCountsPendingKeys(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Checkpoint.Directory = t.TempDir()

	row, err := checkpointStatus(cfg, "search", []string{"#a", "#b"})
	require.NoError(t, err)
	assert.Equal(t, 0, row.snapshots)
	assert.Equal(t, "-", row.completed)
	assert.Equal(t, "2", row.pending)

	store, err := openCheckpoints(cfg, "search")
	require.NoError(t, err)
	store.MarkCompleted("#a")
	store.MarkCompleted("#old")
	_, err = store.Flush()
	require.NoError(t, err)

	row, err = checkpointStatus(cfg, "search", []string{"#a", "#b", "#c"})
	require.NoError(t, err)
	assert.Equal(t, 1, row.snapshots)
	assert.Equal(t, "2", row.completed)
	assert.Equal(t, "2", row.pending)
	assert.Equal(t, filepath.Join(cfg.Checkpoint.Directory, "search"), row.dir)

	row, err = checkpointStatus(cfg, "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "-", row.pending)
}
