package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vdavid/statusreport/backend/internal/logging"
)

type fakeGenerator struct {
	output      string
	err         error
	calls       int
	model       string
	prompt      string
	temperature float32
	hasDeadline bool
}

func (f *fakeGenerator) Generate(ctx context.Context, model, prompt string, temperature float32) (string, error) {
	f.calls++
	f.model = model
	f.prompt = prompt
	f.temperature = temperature
	_, f.hasDeadline = ctx.Deadline()
	return f.output, f.err
}

func TestAnalyze(t *testing.T) {
	t.Run("skips blank reports without calling the model", func(t *testing.T) {
		gen := &fakeGenerator{output: "unused"}
		agent := NewAgent(gen, "gemini-2.0-flash", 0.4, time.Minute, zaptest.NewLogger(t))

		result := agent.Analyze(context.Background(), " \n\t ", "req1")

		assert.Equal(t, StatusSkipped, result.Status)
		assert.Equal(t, "Analysis skipped: Input report was empty.", result.Text)
		assert.False(t, result.Notifiable())
		assert.Equal(t, 0, gen.calls)
	})

	t.Run("embeds the report and fixes section spacing", func(t *testing.T) {
		gen := &fakeGenerator{output: "**1. Concise Summary:**\n- On track\n\n**2. Potential Action Items:**\n* Review PR"}
		agent := NewAgent(gen, "gemini-2.0-flash", 0.4, time.Minute, zaptest.NewLogger(t))

		result := agent.Analyze(context.Background(), "**Trello Board Status:**\nTotal Cards: 2", "req1")

		require.Equal(t, StatusOK, result.Status)
		assert.True(t, result.Notifiable())
		assert.Equal(t, "**1. Concise Summary:**\n\n- On track\n\n**2. Potential Action Items:**\n\n* Review PR", result.Text)

		assert.Equal(t, "gemini-2.0-flash", gen.model)
		assert.Equal(t, float32(0.4), gen.temperature)
		assert.True(t, gen.hasDeadline)
		assert.Contains(t, gen.prompt, "--- Project Status Report ---\n**Trello Board Status:**\nTotal Cards: 2\n--- End Report ---")
		assert.True(t, strings.HasPrefix(gen.prompt, "You are an expert project analyst."))
		assert.Contains(t, gen.prompt, "**3. Identified Risks/Blockers:**")
	})

	t.Run("model error becomes a failed result", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("quota exceeded")}
		agent := NewAgent(gen, "gemini-2.0-flash", 0.4, time.Minute, zaptest.NewLogger(t))

		result := agent.Analyze(context.Background(), "report", "abcd1234")

		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, "Error during agent analysis: quota exceeded. Check logs (Req ID: abcd1234).", result.Text)
		assert.False(t, result.Notifiable())
	})

	t.Run("empty model output is unexpected", func(t *testing.T) {
		gen := &fakeGenerator{output: "  "}
		agent := NewAgent(gen, "gemini-2.0-flash", 0.4, time.Minute, zaptest.NewLogger(t))

		result := agent.Analyze(context.Background(), "report", "req1")

		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, "Agent output format unexpected.", result.Text)
	})
}

func TestResultNotifiable(t *testing.T) {
	assert.True(t, Result{Status: StatusOK, Text: "x"}.Notifiable())
	assert.False(t, Result{Status: StatusOK, Text: "  "}.Notifiable())
	assert.False(t, Result{Status: StatusFailed, Text: "x"}.Notifiable())
	assert.False(t, Result{Status: StatusSkipped, Text: "x"}.Notifiable())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "skipped", StatusSkipped.String())
	assert.Equal(t, "failed", StatusFailed.String())
}

func TestAnalyzeLogsRequestIDOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	agent := NewAgent(&fakeGenerator{output: "**1. Concise Summary:**\n- Fine"}, "gemini-2.0-flash", 0.4, time.Minute, zap.New(core))

	ctx := logging.ContextWithRequestID(context.Background(), "req00001")
	agent.Analyze(ctx, "Total Cards: 1", "req00001")

	require.NotEmpty(t, logs.All())
	for _, entry := range logs.All() {
		ids := 0
		for _, f := range entry.Context {
			if f.Key == "request_id" {
				ids++
			}
		}
		assert.Equal(t, 1, ids, "entry %q", entry.Message)
	}
}
