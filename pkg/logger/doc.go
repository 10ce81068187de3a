// Package logger provides the structured logging interface used across the harvester.
//
// It wraps zerolog behind the Logger interface so packages can take a logger
// as a dependency and tests can substitute NewNopLogger or a capturing
// TestLogger. Console output is colored and goes to stderr; a configured log
// file additionally receives JSON lines.
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger().WithField("endpoint", "search")
//	log.InfoWithFields("Batch started", map[string]interface{}{
//		"keys": len(keys),
//	})
//
// The helpers LogRequest, LogPage, LogQueryResult and LogRateLimit give the
// recurring harvest events a consistent shape.
package logger
