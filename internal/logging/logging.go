// Package logging builds the service's zerolog logger and carries the
// request trace id through contexts.
package logging

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Standard log field names.
const (
	FieldTraceID    = "trace_id"
	FieldOperation  = "operation"
	FieldDurationMs = "duration_ms"
	FieldComponent  = "component"
	FieldUserID     = "user_id"
)

// TraceIDHeader is the request header carrying a caller-supplied trace id.
const TraceIDHeader = "X-Trace-Id"

// New returns a logger writing to w at level. format "console" selects a
// human-readable writer; anything else emits JSON. Invalid levels fall back
// to info.
func New(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

type traceKey struct{}

// WithTraceID returns ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the trace id stored in ctx, generating a UUID when none is
// present so log lines can always be correlated.
func TraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// NewTraceID returns a fresh trace id.
func NewTraceID() string {
	return uuid.New().String()
}
