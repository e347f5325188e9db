package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		logDebug bool
		contains string
	}{
		{name: "json info", level: "info", format: "json", contains: `"message":"hello"`},
		{name: "debug enabled", level: "DEBUG", format: "json", logDebug: true, contains: `"level":"debug"`},
		{name: "invalid level falls back to info", level: "loud", format: "json", contains: `"level":"info"`},
		{name: "console", level: "info", format: "console", contains: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(tt.level, tt.format, &buf)
			if tt.logDebug {
				logger.Debug().Msg("hello")
			} else {
				logger.Info().Msg("hello")
			}
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("warn", "json", &buf)
	logger.Info().Msg("quiet")
	assert.Empty(t, buf.String())
}

func TestTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", TraceID(ctx))

	generated := TraceID(context.Background())
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
}
