package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tweetharvest/pkg/config"
)

func bufferLogger(buf *bytes.Buffer) *zerologLogger {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	zlog := zerolog.New(buf).Level(zerolog.DebugLevel)
	return &zerologLogger{logger: &zlog, fields: make(map[string]interface{})}
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "loud"}, wantErr: true},
		{name: "file output", cfg: &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "run.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New(&config.LoggingConfig{Level: "info", File: path})
	require.NoError(t, err)

	l.WithField("key", "#go").Info("Query finished")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "Query finished", entry["message"])
	assert.Equal(t, "#go", entry["key"])
	assert.Equal(t, "tweetharvest", entry["app"])
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFieldsAreInherited(t *testing.T) {
	var buf bytes.Buffer
	base := bufferLogger(&buf)

	child := base.WithField("endpoint", "search").WithFields(map[string]interface{}{"key": "#go"})
	child.InfoWithFields("page", map[string]interface{}{"index": 3})

	entry := lastLine(t, &buf)
	assert.Equal(t, "search", entry["endpoint"])
	assert.Equal(t, "#go", entry["key"])
	assert.Equal(t, float64(3), entry["index"])

	buf.Reset()
	base.Info("plain")
	entry = lastLine(t, &buf)
	assert.NotContains(t, entry, "endpoint", "parent logger must not see child fields")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.WithError(errors.New("disk full")).Error("write failed")
	assert.Equal(t, "disk full", lastLine(t, &buf)["error"])

	assert.Same(t, l, l.WithError(nil))
}

func TestFieldTypes(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.DebugWithFields("types", map[string]interface{}{
		"s":   "x",
		"i":   7,
		"b":   true,
		"d":   1500 * time.Millisecond,
		"ss":  []string{"a", "b"},
		"any": struct{ N int }{N: 1},
	})

	entry := lastLine(t, &buf)
	assert.Equal(t, "x", entry["s"])
	assert.Equal(t, float64(7), entry["i"])
	assert.Equal(t, true, entry["b"])
	assert.Equal(t, []interface{}{"a", "b"}, entry["ss"])
	assert.NotNil(t, entry["any"])
}

func TestNewWithOutput(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithOutput(&config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)

	l.WithField("key", "#golang").Info("Query finished")
	entry := lastLine(t, &buf)
	assert.Equal(t, "Query finished", entry["message"])
	assert.Equal(t, "#golang", entry["key"])
	assert.Equal(t, "tweetharvest", entry["app"])
}

func TestSetLoggerAcceptsNop(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	SetLogger(NewNopLogger())
	assert.NotPanics(t, func() { GetLogger().Info("dropped") })
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "warn"}))
	assert.NotNil(t, GetLogger())
	assert.NotNil(t, GetLogger().GetZerolog())
}

func TestLogRequestLevels(t *testing.T) {
	log := NewTestLogger()

	LogRequest(log, "GET", "http://x/2/tweets", 200, time.Millisecond)
	LogRequest(log, "GET", "http://x/2/tweets", 429, time.Millisecond)
	LogRequest(log, "GET", "http://x/2/tweets", 503, time.Millisecond)
	LogRequest(log, "GET", "http://x/2/tweets", 0, time.Millisecond)

	assert.Len(t, log.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 3)
	assert.True(t, log.HasMessage("HTTP request rate limited"))
	assert.True(t, log.HasMessage("HTTP request failed"))
}

func TestLogQueryResult(t *testing.T) {
	log := NewTestLogger()

	LogQueryResult(log, "completed", 3, 2, 3, time.Second)
	LogQueryResult(log, "failed", 0, 0, 6, time.Second)

	infos := log.GetMessagesByLevel("INFO")
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Fields["written"])
	assert.Len(t, log.GetMessagesByLevel("WARN"), 1)
}

func TestLogRateLimit(t *testing.T) {
	log := NewTestLogger()

	LogRateLimit(log, "search", 0)
	assert.Empty(t, log.GetMessages())

	LogRateLimit(log, "search", 3*time.Second)
	LogRateLimit(log, "search", 15*time.Minute)
	assert.Len(t, log.GetMessagesByLevel("DEBUG"), 1)
	assert.True(t, log.HasMessage("Waiting for rate limit window"))
}

func TestLogPage(t *testing.T) {
	log := NewTestLogger()
	LogPage(log.WithField("key", "#go"), 4, 100, "/out/_go_4.json")

	msgs := log.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "#go", msgs[0].Fields["key"])
	assert.Equal(t, 4, msgs[0].Fields["page"])
}

func TestTestLoggerCapturesScope(t *testing.T) {
	log := NewTestLogger()
	err := errors.New("boom")

	log.WithField("a", 1).WithError(err).WithFields(map[string]interface{}{"b": 2}).Warn("scoped")

	msgs := log.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, msgs[0].Fields)
	assert.Equal(t, err, msgs[0].Error)
	assert.Contains(t, log.String(), "[WARN] scoped")

	log.Clear()
	assert.Empty(t, log.GetMessages())
}

var (
	_ Logger = (*zerologLogger)(nil)
	_ Logger = (*nopLogger)(nil)
	_ Logger = (*TestLogger)(nil)
)

func TestDisabledLevelsWriteNothing(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	zlog := zerolog.New(&buf).Level(zerolog.WarnLevel)
	l := &zerologLogger{logger: &zlog, fields: map[string]interface{}{"endpoint": "search"}}

	l.Debug("hidden")
	l.InfoWithFields("hidden", map[string]interface{}{"page": 1})
	assert.Zero(t, buf.Len())

	l.WarnWithFields("shown", map[string]interface{}{"page": 2})
	entry := lastLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "search", entry["endpoint"])
	assert.Equal(t, float64(2), entry["page"])
}
