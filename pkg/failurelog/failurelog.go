// Package failurelog records query keys that could not be harvested.
//
// The log is append-only and advisory: the engine never reads it back, and
// a failure to append is reported through the logger without stopping the
// batch. Keys listed here are retried by the next run because they are
// absent from the checkpoint.
package failurelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tweetharvest/pkg/logger"
)

// Stage names where a key failed
const (
	StageFetch = "fetch"
	StageWrite = "write"
)

// Backend names accepted by Open
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Entry is one failed key
type Entry struct {
	Key       string    `json:"key"`
	Endpoint  string    `json:"endpoint"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	Pages     int       `json:"pages"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
}

// Sink persists entries
type Sink interface {
	Append(e Entry) error
	Close() error
}

// Open returns the sink for backend writing to path
func Open(backend, path string) (Sink, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSONL:
		sink, err := OpenJSONL(path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	case BackendSQLite:
		sink, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown failure log backend %q", backend)
	}
}

// JSONLSink appends one JSON object per line
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
}

// OpenJSONL opens path for appending, creating it if needed
func OpenJSONL(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create failure log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	return &JSONLSink{file: f}, nil
}

// Append writes e as a single line
func (s *JSONLSink) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode failure entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to append failure entry: %w", err)
	}
	return nil
}

// Close closes the file
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// ReadJSONL reads every entry of a JSONL failure log. Malformed lines are skipped.
func ReadJSONL(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read failure log: %w", err)
	}
	return entries, nil
}

// Log stamps and forwards entries to a Sink, swallowing sink errors
type Log struct {
	sink   Sink
	runID  string
	now    func() time.Time
	logger logger.Logger

	mu    sync.Mutex
	count int
}

// NewLog wraps sink. A nil sink discards entries.
func NewLog(sink Sink, runID string, log logger.Logger) *Log {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Log{sink: sink, runID: runID, now: time.Now, logger: log}
}

// Record appends one entry. Errors from the sink are logged, never returned.
func (l *Log) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if e.RunID == "" {
		e.RunID = l.runID
	}

	l.mu.Lock()
	l.count++
	l.mu.Unlock()

	l.logger.WarnWithFields("query failed", map[string]interface{}{
		"key":      e.Key,
		"endpoint": e.Endpoint,
		"stage":    e.Stage,
		"reason":   e.Reason,
	})

	if l.sink == nil {
		return
	}
	if err := l.sink.Append(e); err != nil {
		l.logger.ErrorWithFields("failed to write failure log", map[string]interface{}{
			"key":   e.Key,
			"error": err.Error(),
		})
	}
}

// Count returns how many entries were recorded through this Log
func (l *Log) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close closes the underlying sink
func (l *Log) Close() error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// ReadAll returns the entries stored by backend at path
func ReadAll(backend, path string) ([]Entry, error) {
	switch strings.ToLower(backend) {
	case "", BackendJSONL:
		return ReadJSONL(path)
	case BackendSQLite:
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, nil
		}
		sink, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		defer sink.Close()
		return sink.Entries()
	default:
		return nil, fmt.Errorf("unknown failure log backend %q", backend)
	}
}
