package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)

// Logger writes structured audit events for authentication, authorization
// and file operations.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger from a zerolog.Logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Nop returns a logger that discards every event.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Open returns a JSON audit logger appending to path, or to stderr for "-".
// An empty path yields a no-op logger.
func Open(path string) (*Logger, io.Closer, error) {
	path = strings.TrimSpace(path)
	switch path {
	case "":
		return Nop(), nopCloser{}, nil
	case "-":
		return NewLogger(newJSONLogger(os.Stderr)), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return NewLogger(newJSONLogger(f)), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newJSONLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("component", "audit").Logger()
}

func levelFor(result string) zerolog.Level {
	if result == ResultDenied {
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

// LogAuth logs a login or token verification.
// method is "password" for logins and "bearer" or "cookie" for token checks.
func (l *Logger) LogAuth(username, method, result, details, sourceIP string) {
	if l == nil {
		return
	}
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "auth").
		Str("username", username).
		Str("method", method).
		Str("result", result).
		Str("source_ip", sourceIP)
	if details != "" {
		event = event.Str("details", details)
	}
	event.Msg("Authentication event")
}

// LogRegistration logs an account registration attempt.
func (l *Logger) LogRegistration(username, result, details, sourceIP string) {
	if l == nil {
		return
	}
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "registration").
		Str("username", username).
		Str("result", result).
		Str("source_ip", sourceIP)
	if details != "" {
		event = event.Str("details", details)
	}
	event.Msg("Registration event")
}

// LogAuthz logs an ownership check on a file or folder.
func (l *Logger) LogAuthz(userID int64, verb, resource, resourceID, result, reason string) {
	if l == nil {
		return
	}
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "authz").
		Int64("user_id", userID).
		Str("verb", verb).
		Str("resource", resource).
		Str("result", result)
	if resourceID != "" {
		event = event.Str("resource_id", resourceID)
	}
	if reason != "" {
		event = event.Str("reason", reason)
	}
	event.Msg("Authorization event")
}

// LogFileOp logs a completed or rejected upload, delete, move or rename.
func (l *Logger) LogFileOp(userID int64, operation, fileID, result string, sizeBytes int64, details string) {
	if l == nil {
		return
	}
	event := l.logger.WithLevel(levelFor(result)).
		Str("event_type", "file_operation").
		Int64("user_id", userID).
		Str("operation", operation).
		Str("result", result).
		Int64("size_bytes", sizeBytes)
	if fileID != "" {
		event = event.Str("file_id", fileID)
	}
	if details != "" {
		event = event.Str("details", details)
	}
	event.Msg("File operation")
}

// LogGC logs one blob sweep.
func (l *Logger) LogGC(candidates, deleted, failed int, reclaimed int64, dryRun bool, elapsed time.Duration) {
	if l == nil {
		return
	}
	l.logger.Info().
		Str("event_type", "blob_gc").
		Int("candidates", candidates).
		Int("deleted", deleted).
		Int("failed", failed).
		Int64("reclaimed_bytes", reclaimed).
		Bool("dry_run", dryRun).
		Dur("elapsed", elapsed).
		Msg("Blob sweep")
}
