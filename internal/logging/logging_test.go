package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New("loud", "")
		assert.Error(t, err)
	})

	t.Run("writes JSON lines to the log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "status.log")

		logger, err := New("info", path)
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("report generated", RequestID("abc12345"))
		require.NoError(t, logger.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		content := string(data)

		assert.Contains(t, content, `"msg":"report generated"`)
		assert.Contains(t, content, `"request_id":"abc12345"`)
		assert.False(t, strings.Contains(content, "hidden"), "debug line should be filtered at info level")
	})
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := ContextWithRequestID(context.Background(), "feedbeef")
	FromContext(ctx, base).Info("with id")
	FromContext(context.Background(), base).Info("without id")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "feedbeef", entries[0].ContextMap()["request_id"])
	_, ok := entries[1].ContextMap()["request_id"]
	assert.False(t, ok)
}

func countRequestIDs(entry observer.LoggedEntry) int {
	n := 0
	for _, f := range entry.Context {
		if f.Key == "request_id" {
			n++
		}
	}
	return n
}

func TestForRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := ContextWithRequestID(context.Background(), "feedbeef")
	ForRequest(ctx, base, "feedbeef").Info("context and argument")
	ForRequest(ctx, base, "other").Info("context wins")
	ForRequest(context.Background(), base, "abc12345").Info("argument only")
	ForRequest(context.Background(), base, "").Info("neither")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, 1, countRequestIDs(entries[0]))
	assert.Equal(t, "feedbeef", entries[1].ContextMap()["request_id"])
	assert.Equal(t, 1, countRequestIDs(entries[1]))
	assert.Equal(t, "abc12345", entries[2].ContextMap()["request_id"])
	assert.Equal(t, 0, countRequestIDs(entries[3]))
}
