// Package chat drives send/receive turns against the application state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/model"
	"github.com/nstogner/vivica/pkg/state"
)

// TitleLength is the number of characters of the first message used as a
// conversation title.
const TitleLength = 32

// ErrNotRetryable is returned by Retry for messages that are not errored
// assistant replies with a preceding user message.
var ErrNotRetryable = errors.New("message cannot be retried")

// Streamer opens a streaming completion for a profile.
type Streamer interface {
	StreamChat(ctx context.Context, history []domain.Message, profile domain.AIProfile, route domain.Route, useMemory bool) (model.Stream, error)
}

// Summarizer condenses a conversation into a memory summary.
type Summarizer interface {
	Summarize(ctx context.Context, messages []domain.Message, profile domain.AIProfile) (string, error)
}

// Orchestrator runs chat turns and memory syncs. At most one turn and one
// sync run at a time; overlapping calls return immediately.
type Orchestrator struct {
	state      *state.State
	streamer   Streamer
	summarizer Summarizer

	generating  atomic.Bool
	summarizing atomic.Bool
}

// New creates a new Orchestrator.
func New(st *state.State, streamer Streamer, summarizer Summarizer) *Orchestrator {
	return &Orchestrator{
		state:      st,
		streamer:   streamer,
		summarizer: summarizer,
	}
}

// Turn is the outcome of a settled exchange.
type Turn struct {
	ConversationID string
	User           domain.Message
	Assistant      domain.Message
}

// Generating reports whether a turn is in flight.
func (o *Orchestrator) Generating() bool { return o.generating.Load() }

// Summarizing reports whether a memory sync is in flight.
func (o *Orchestrator) Summarizing() bool { return o.summarizing.Load() }

// Send appends content as a user message to the active conversation (creating
// one if needed) and streams the reply into a new assistant message.
//
// Blank content, or a call made while another turn is in flight, is a no-op
// and returns a nil Turn. Provider failures do not produce an error: they are
// recorded on the assistant message. The returned error reports state
// failures only.
func (o *Orchestrator) Send(ctx context.Context, content string) (*Turn, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if !o.generating.CompareAndSwap(false, true) {
		slog.Debug("Send ignored, turn already in flight")
		return nil, nil
	}
	defer o.generating.Store(false)

	return o.turn(ctx, content)
}

func (o *Orchestrator) turn(ctx context.Context, content string) (*Turn, error) {
	profile, route := o.state.ActiveRoute()

	conv, ok := o.state.ActiveConversation()
	if !ok {
		var err error
		conv, err = o.state.CreateConversation(ctx, Title(content))
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		slog.Info("Conversation created", "conversationID", conv.ID, "profileID", profile.ID)
	}

	user, err := o.state.AppendMessage(ctx, conv.ID, domain.Message{
		Role:      domain.RoleUser,
		Content:   content,
		ProfileID: profile.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("appending user message: %w", err)
	}
	history := append(conv.Messages, user)

	placeholder, err := o.state.AppendMessage(ctx, conv.ID, domain.Message{
		Role:      domain.RoleAssistant,
		ProfileID: profile.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("appending assistant message: %w", err)
	}

	t := &Turn{ConversationID: conv.ID, User: user, Assistant: placeholder}
	reply, streamErr := o.consume(ctx, conv.ID, placeholder.ID, history, profile, route, conv.IsMemoryEnabled)

	// The turn settles even if the caller's context was cancelled mid-stream.
	settleCtx := context.WithoutCancel(ctx)
	if streamErr != nil {
		slog.Warn("Chat turn failed",
			"conversationID", conv.ID,
			"model", profile.Model,
			"error", streamErr,
		)
		t.Assistant.Content = "Error: " + streamErr.Error()
		t.Assistant.IsError = true
		if err := o.state.FailMessage(settleCtx, conv.ID, placeholder.ID, t.Assistant.Content); err != nil {
			return t, fmt.Errorf("recording failure: %w", err)
		}
		return t, nil
	}

	t.Assistant.Content = reply
	if err := o.state.Commit(settleCtx, conv.ID); err != nil {
		return t, fmt.Errorf("committing turn: %w", err)
	}
	slog.Debug("Chat turn committed", "conversationID", conv.ID, "replyLength", len(reply))
	return t, nil
}

// consume streams the reply, replacing the placeholder content with the full
// accumulation after every fragment.
func (o *Orchestrator) consume(ctx context.Context, conversationID, messageID string, history []domain.Message, profile domain.AIProfile, route domain.Route, useMemory bool) (string, error) {
	stream, err := o.streamer.StreamChat(ctx, history, profile, route, useMemory)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var acc strings.Builder
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return acc.String(), nil
		}
		if err != nil {
			return acc.String(), err
		}
		acc.WriteString(frag)
		if err := o.state.SetMessageContent(conversationID, messageID, acc.String()); err != nil {
			return acc.String(), fmt.Errorf("updating reply: %w", err)
		}
	}
}

// Retry re-sends the user message that preceded the errored assistant
// message messageID in the active conversation. The errored message is left
// in place and a new turn is appended.
func (o *Orchestrator) Retry(ctx context.Context, messageID string) (*Turn, error) {
	conv, ok := o.state.ActiveConversation()
	if !ok {
		return nil, state.ErrNotFound
	}
	content, err := retryContent(conv.Messages, messageID)
	if err != nil {
		return nil, err
	}
	slog.Info("Retrying turn", "conversationID", conv.ID, "messageID", messageID)
	return o.Send(ctx, content)
}

func retryContent(msgs []domain.Message, messageID string) (string, error) {
	for i, m := range msgs {
		if m.ID != messageID {
			continue
		}
		if m.Role != domain.RoleAssistant || !m.IsError {
			return "", ErrNotRetryable
		}
		for j := i - 1; j >= 0; j-- {
			if msgs[j].Role == domain.RoleUser {
				return msgs[j].Content, nil
			}
		}
		return "", ErrNotRetryable
	}
	return "", state.ErrNotFound
}

// SyncMemory summarizes the active conversation and replaces the owning
// profile's memory summary with the result. It returns the new summary, or ""
// when there was nothing to do.
func (o *Orchestrator) SyncMemory(ctx context.Context) (string, error) {
	if !o.summarizing.CompareAndSwap(false, true) {
		slog.Debug("SyncMemory ignored, sync already in flight")
		return "", nil
	}
	defer o.summarizing.Store(false)

	conv, ok := o.state.ActiveConversation()
	if !ok || len(conv.Messages) < 2 {
		return "", nil
	}
	profile, err := o.state.Profile(conv.ProfileID)
	if err != nil {
		return "", fmt.Errorf("looking up profile %s: %w", conv.ProfileID, err)
	}

	summary, err := o.summarizer.Summarize(ctx, conv.Messages, profile)
	if err != nil {
		slog.Error("Memory sync failed", "conversationID", conv.ID, "error", err)
		return "", err
	}
	if err := o.state.SetSummary(ctx, profile.ID, summary); err != nil {
		return "", fmt.Errorf("storing summary: %w", err)
	}
	slog.Info("Memory synced", "profileID", profile.ID, "summaryLength", len(summary))
	return summary, nil
}

// Title returns the first TitleLength characters of content.
func Title(content string) string {
	r := []rune(content)
	if len(r) > TitleLength {
		r = r[:TitleLength]
	}
	return string(r)
}
