// Package analysis asks an LLM for a summary, action items and risks based on the raw report.
package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/logging"
)

type Status int

const (
	StatusOK Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result carries the analysis text in every outcome. Only an OK result is worth posting.
type Result struct {
	Status Status
	Text   string
}

func (r Result) Notifiable() bool {
	return r.Status == StatusOK && strings.TrimSpace(r.Text) != ""
}

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, temperature float32) (string, error)
}

type Agent struct {
	gen         Generator
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

func NewAgent(gen Generator, model string, temperature float32, timeout time.Duration, logger *zap.Logger) *Agent {
	return &Agent{
		gen:         gen,
		model:       model,
		temperature: temperature,
		timeout:     timeout,
		logger:      logger,
	}
}

// Analyze never returns an error: failures become a Failed result whose text explains them.
func (a *Agent) Analyze(ctx context.Context, rawReport, requestID string) Result {
	logger := logging.ForRequest(ctx, a.logger, requestID)

	if strings.TrimSpace(rawReport) == "" {
		logger.Warn("Raw report is empty, skipping agent analysis")
		return Result{Status: StatusSkipped, Text: "Analysis skipped: Input report was empty."}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	logger.Info("Invoking agent for analysis", zap.String("model", a.model))
	output, err := a.gen.Generate(ctx, a.model, BuildPrompt(rawReport), a.temperature)
	if err != nil {
		logger.Error("Error during agent analysis", zap.Error(err))
		return Result{
			Status: StatusFailed,
			Text:   fmt.Sprintf("Error during agent analysis: %v. Check logs (Req ID: %s).", err, requestID),
		}
	}

	if strings.TrimSpace(output) == "" {
		logger.Warn("Could not extract analysis from agent result")
		return Result{Status: StatusFailed, Text: "Agent output format unexpected."}
	}

	logger.Info("Agent analysis completed")
	return Result{Status: StatusOK, Text: fixSectionSpacing(output)}
}

// BuildPrompt embeds the report verbatim in the analyst instructions.
func BuildPrompt(rawReport string) string {
	return "You are an expert project analyst. Analyze the following project status report:\n\n" +
		"--- Project Status Report ---\n" +
		rawReport + "\n" +
		"--- End Report ---\n\n" +
		"Generate a response containing the following distinct sections, using Markdown for formatting. " +
		"**Ensure there is a newline between each section title and the first bullet point or text within that section.**\n\n" +
		"**1. Concise Summary:**\n" +
		"- Provide 3-5 key bullet points summarizing the overall project status...\n\n" +
		"**2. Potential Action Items:**\n" +
		"- List any specific tasks... If none, state 'No specific action items identified'.\n\n" +
		"**3. Identified Risks/Blockers:**\n" +
		"- List any potential risks... If none, state 'No immediate risks/blockers identified'."
}

// fixSectionSpacing inserts the blank line models tend to drop between a bold
// section title and its first bullet.
func fixSectionSpacing(s string) string {
	s = strings.ReplaceAll(s, ":**\n*", ":**\n\n*")
	return strings.ReplaceAll(s, ":**\n-", ":**\n\n-")
}
