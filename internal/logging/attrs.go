package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr is re-exported so call sites only import this package.
type Attr = slog.Attr

func Bool(key string, value bool) Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Problem is the classification and operator guidance carried by every
// WARN and ERROR line. Event becomes event_type, Impact says what the
// condition cost, and Hint is the next step written to error_hint.
type Problem struct {
	Event  string
	Impact string
	Hint   string
}

const (
	defaultImpact = "operation continued"
	defaultHint   = "check logs for details"
)

func (p Problem) args(attrs []Attr) []any {
	args := make([]any, 0, len(attrs)+3)
	args = append(args, String(FieldEventType, p.Event))
	if p.Impact != "" {
		args = append(args, String(FieldImpact, p.Impact))
	}
	if p.Hint != "" {
		args = append(args, String(FieldErrorHint, p.Hint))
	}
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// Warn logs msg at WARN with p ahead of attrs. A warning always states its
// impact, so an empty Impact is filled with a generic one.
func Warn(logger *slog.Logger, msg string, p Problem, attrs ...Attr) {
	if logger == nil {
		return
	}
	if p.Impact == "" {
		p.Impact = defaultImpact
	}
	logger.Warn(msg, p.args(attrs)...)
}

// Fail logs msg at ERROR with p ahead of attrs. An empty Hint is filled so
// operators always get a next step.
func Fail(logger *slog.Logger, msg string, p Problem, attrs ...Attr) {
	if logger == nil {
		return
	}
	if p.Hint == "" {
		p.Hint = defaultHint
	}
	logger.Error(msg, p.args(attrs)...)
}

func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with a component attribute. A nil logger
// becomes a no-op one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
