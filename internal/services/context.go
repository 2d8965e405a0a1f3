package services

import "context"

type contextKey string

const (
	comicIDKey   contextKey = "comic_id"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithComicID annotates context with the library record identifier.
func WithComicID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, comicIDKey, id)
}

// ComicIDFromContext extracts the library record identifier if present.
func ComicIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(comicIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithStage annotates context with the ingestion stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier. Batch jobs
// use their job ID here.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
