package failurelog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetharvest/pkg/logger"
)

type brokenSink struct{ closed bool }

func (b *brokenSink) Append(Entry) error { return errors.New("disk full") }
func (b *brokenSink) Close() error       { b.closed = true; return nil }

func TestJSONLSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "failures.jsonl")

	sink, err := OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(Entry{Key: "a", Stage: StageFetch, Reason: "503"}))
	require.NoError(t, sink.Close())

	// reopening appends instead of truncating
	sink, err = OpenJSONL(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append(Entry{Key: "b", Stage: StageWrite, Reason: "disk"}))
	require.NoError(t, sink.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "\n"))

	entries, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, StageWrite, entries[1].Stage)
}

func TestReadJSONLMissingFile(t *testing.T) {
	entries, err := ReadJSONL(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.db")

	sink, err := Open(BackendSQLite, path)
	require.NoError(t, err)

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Append(Entry{Key: "42", Endpoint: "timeline", Stage: StageFetch, Reason: "429", Pages: 3, RunID: "r1", Timestamp: ts}))
	require.NoError(t, sink.Append(Entry{Key: "43", Endpoint: "timeline", Stage: StageFetch, Reason: "500", RunID: "r1", Timestamp: ts}))
	require.NoError(t, sink.Close())

	entries, err := ReadAll(BackendSQLite, path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "42", entries[0].Key)
	assert.Equal(t, 3, entries[0].Pages)
	assert.True(t, ts.Equal(entries[0].Timestamp))
	assert.Equal(t, "43", entries[1].Key)
}

func TestSQLiteInMemory(t *testing.T) {
	sink, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Append(Entry{Key: "x", Endpoint: "search", Stage: StageFetch, Reason: "boom", Timestamp: time.Now()}))
	entries, err := sink.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("kafka", "x")
	assert.Error(t, err)
	_, err = ReadAll("kafka", "x")
	assert.Error(t, err)
}

func TestLogStampsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.jsonl")
	sink, err := OpenJSONL(path)
	require.NoError(t, err)

	l := NewLog(sink, "run-9", logger.NewNopLogger())
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Record(Entry{Key: "k", Endpoint: "search", Stage: StageFetch, Reason: "exhausted"})
	require.NoError(t, l.Close())

	entries, err := ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run-9", entries[0].RunID)
	assert.True(t, fixed.Equal(entries[0].Timestamp))
	assert.Equal(t, 1, l.Count())
}

func TestLogSwallowsSinkErrors(t *testing.T) {
	log := logger.NewTestLogger()
	sink := &brokenSink{}
	l := NewLog(sink, "run", log)

	assert.NotPanics(t, func() {
		l.Record(Entry{Key: "k", Stage: StageFetch, Reason: "x"})
	})
	assert.True(t, log.HasMessage("failed to write failure log"))
	assert.Equal(t, 1, l.Count())

	require.NoError(t, l.Close())
	assert.True(t, sink.closed)
}

func TestNilSinkDiscards(t *testing.T) {
	l := NewLog(nil, "run", logger.NewNopLogger())
	l.Record(Entry{Key: "k"})
	assert.Equal(t, 1, l.Count())
	assert.NoError(t, l.Close())
}
