package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nstogner/vivica/pkg/domain"
)

// ErrMissingCredential is returned when a secondary-provider model is selected
// without an API key. It is raised before any network call is made.
var ErrMissingCredential = errors.New("API key missing for external model")

// Message represents a message in the model's conversation context.
type Message struct {
	Role    domain.Role
	Content string
}

// Request is a single streaming completion request.
type Request struct {
	// Model identifies which model to use (e.g. "gemini-3-flash-preview").
	Model string
	// Instructions is the system instruction.
	Instructions string
	// Temperature is passed through as a generation parameter.
	Temperature float64
	// Messages is the conversation history, oldest first.
	Messages []Message
	// Credential authorizes the request for providers that take a per-call key.
	Credential string
}

// Provider represents a completion back-end (e.g. Gemini, OpenRouter).
type Provider interface {
	// Name returns the provider's identifier.
	Name() string

	// List returns the available models from this provider.
	List(ctx context.Context) ([]domain.Model, error)

	// Stream opens a streaming completion.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream is a forward-only, single-consumer sequence of text fragments.
type Stream interface {
	// Recv blocks until the next fragment is available. It returns io.EOF once
	// the response is complete.
	Recv() (string, error)

	// Close releases resources and cancels the upstream request.
	Close() error
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s error (%d)", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.StatusCode, body)
}

// FromHistory converts conversation messages into provider messages.
func FromHistory(history []domain.Message) []Message {
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
