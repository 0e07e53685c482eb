// Package log wraps logrus with the field vocabulary every component shares
// (spec §4.11): request_id, run_id, task_id, tenant_id, provider, model.
package log

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/genbatch/pipeline/internal/config"
)

// Logger wraps *logrus.Logger so call sites can still reach the full logrus
// API (WithError, Fields, …) while getting New/NewDefault construction that
// matches this service's config shape.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger from a LoggingConfig.
func New(cfg config.LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "pipeline"
		}
		if err := os.MkdirAll("logs", 0o755); err != nil {
			l.Errorf("create logs directory: %v", err)
			break
		}
		f, err := os.OpenFile(filepath.Join("logs", prefix+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Errorf("open log file: %v", err)
			break
		}
		l.SetOutput(io.MultiWriter(os.Stdout, f))
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

// NewDefault returns a JSON logger at info level writing to stdout, for
// contexts (tests, one-off tools) that don't load a full config.Config.
func NewDefault() *Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stdout)
	return &Logger{Logger: l}
}

type ctxKey struct{}

// WithRequestID derives a child context carrying request_id, generating one
// if the caller doesn't already have one (spec §4.11).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestID returns the request id stashed by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// Entry is the subset of fields (spec §4.11) every per-task log line should
// carry when available; zero values are simply omitted.
type Entry struct {
	RequestID string
	RunID     string
	TaskID    string
	TenantID  string
	Provider  string
	Model     string
}

// WithEntry returns a logrus.Entry pre-populated with the non-empty fields
// of e plus request_id from ctx, if present.
func (l *Logger) WithEntry(ctx context.Context, e Entry) *logrus.Entry {
	fields := logrus.Fields{}
	if rid := RequestID(ctx); rid != "" {
		fields["request_id"] = rid
	}
	if e.RequestID != "" {
		fields["request_id"] = e.RequestID
	}
	if e.RunID != "" {
		fields["run_id"] = e.RunID
	}
	if e.TaskID != "" {
		fields["task_id"] = e.TaskID
	}
	if e.TenantID != "" {
		fields["tenant_id"] = e.TenantID
	}
	if e.Provider != "" {
		fields["provider"] = e.Provider
	}
	if e.Model != "" {
		fields["model"] = e.Model
	}
	return l.Logger.WithFields(fields)
}
