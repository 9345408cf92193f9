package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		" error ": ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestComponentFieldsAreAttached(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	WarnCF("dispatch", "No handler found", map[string]interface{}{"key": "stats"})
	InfoC("poller", "started")

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "No handler found", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "dispatch", ctx["component"])
	assert.Equal(t, "stats", ctx["key"])

	assert.Equal(t, "poller", entries[1].ContextMap()["component"])
}

func TestReplaceRestoresPrevious(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	restore()

	InfoC("test", "should not be observed")
	assert.Equal(t, 0, logs.Len())
}
