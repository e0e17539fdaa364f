package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestObjVariantsTagEvent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.WarnObj("draft expired", "draft_expired", map[string]any{
		"draft_id": "d1",
		"error":    errors.New("boom"),
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "draft_expired", ctx["event"])
	assert.Equal(t, "d1", ctx["draft_id"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestWithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(core)).With(map[string]any{"component": "pipeline"})

	log.Info("cycle started")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline", entries[0].ContextMap()["component"])
}

func TestEnsure(t *testing.T) {
	assert.IsType(t, NopLogger{}, Ensure(nil))
	l := NopLogger{}
	assert.Equal(t, l, Ensure(l))
}

func TestNewBuildsLogger(t *testing.T) {
	log, err := New(Config{Environment: "development", Level: "debug", ServiceName: "test"})
	require.NoError(t, err)
	log.Debug("hello")
}
