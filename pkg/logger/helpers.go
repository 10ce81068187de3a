package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs one API request at a level matching its status
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode == 0:
		l.WarnWithFields("HTTP request failed", fields)
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode == 429:
		l.WarnWithFields("HTTP request rate limited", fields)
	case statusCode >= 500:
		l.WarnWithFields("HTTP request server error", fields)
	default:
		l.WarnWithFields("HTTP request client error", fields)
	}
}

// LogPage logs a page artifact written for the logger's query
func LogPage(l Logger, index, records int, path string) {
	l.DebugWithFields("Page written", map[string]interface{}{
		"page":    index,
		"records": records,
		"path":    path,
	})
}

// LogQueryResult logs how a query ended
func LogQueryResult(l Logger, terminal string, fetched, written, requests int, duration time.Duration) {
	fields := map[string]interface{}{
		"terminal": terminal,
		"pages":    fetched,
		"written":  written,
		"requests": requests,
		"duration": duration.Round(time.Millisecond).String(),
	}
	if terminal == "completed" {
		l.InfoWithFields("Query finished", fields)
		return
	}
	l.WarnWithFields("Query finished", fields)
}

// LogRateLimit logs time spent waiting on the rate limiter. Short waits are
// the normal pacing and stay at debug level.
func LogRateLimit(l Logger, class string, wait time.Duration) {
	if wait <= 0 {
		return
	}
	fields := map[string]interface{}{
		"class": class,
		"wait":  wait.Round(time.Millisecond).String(),
	}
	if wait > time.Minute {
		l.InfoWithFields("Waiting for rate limit window", fields)
		return
	}
	l.DebugWithFields("Rate limit pause", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing (useful for testing)
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
