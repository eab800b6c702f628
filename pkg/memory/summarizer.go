// Package memory condenses finished conversations into a profile's long-term
// memory summary.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/vivica/pkg/domain"
)

const (
	// Instructions is the system instruction sent with every summary request.
	Instructions = "You are a memory processor. Extract only valuable context."

	promptPrefix = "Summarize the following conversation into a concise bulleted list of key user preferences, " +
		"facts mentioned, and current context that should be remembered. Keep it under 200 words.\n\nCONVERSATION:\n"
)

// Completer issues a single non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, modelName, instructions, prompt string) (string, error)
}

// Summarizer turns a message sequence into a memory summary.
type Summarizer struct {
	completer Completer
	model     string
}

// NewSummarizer creates a Summarizer that uses domain.SummaryModel.
func NewSummarizer(c Completer) *Summarizer {
	return &Summarizer{completer: c, model: domain.SummaryModel}
}

// Summarize returns a fresh summary of messages. Conversations with fewer
// than two messages are not summarized and yield "".
func (s *Summarizer) Summarize(ctx context.Context, messages []domain.Message, profile domain.AIProfile) (string, error) {
	if len(messages) < 2 {
		return "", nil
	}

	slog.Info("Summarizing conversation",
		"profileID", profile.ID,
		"messageCount", len(messages),
		"model", s.model,
	)

	text, err := s.completer.Complete(ctx, s.model, Instructions, Prompt(messages))
	if err != nil {
		return "", fmt.Errorf("summarizing conversation: %w", err)
	}
	return text, nil
}

// Prompt renders messages as "<role>: <content>" lines under the fixed
// extraction request.
func Prompt(messages []domain.Message) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	return promptPrefix + strings.Join(lines, "\n")
}
