// Package openrouter implements the OpenRouter-compatible chat completions
// transport. Responses are read as a line-oriented event stream.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/model"
)

// DefaultBaseURL is the public OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

const doneMarker = "[DONE]"

// Provider implements model.Provider against an OpenRouter-compatible API.
// The API key travels with each request rather than living on the provider.
type Provider struct {
	baseURL string
	client  *http.Client
}

// Verify interface compliance.
var _ model.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API root (used by tests and self-hosted gateways).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// New creates a new OpenRouter provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: DefaultBaseURL,
		client:  model.NewHTTPClient("openrouter"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "openrouter" }

// List fetches the public model registry.
func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &model.StatusError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("fetch models: invalid JSON response")
	}

	var models []domain.Model
	gjson.GetBytes(body, "data").ForEach(func(_, m gjson.Result) bool {
		id := m.Get("id").String()
		if id == "" {
			return true
		}
		name := m.Get("name").String()
		if name == "" {
			name = id
		}
		models = append(models, domain.Model{ID: id, Name: name})
		return true
	})
	return models, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// buildRequest prepends the system instruction and maps history roles onto
// user/assistant.
func buildRequest(req model.Request) chatRequest {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	msgs = append(msgs, chatMessage{Role: string(domain.RoleSystem), Content: req.Instructions})
	for _, m := range req.Messages {
		role := string(domain.RoleAssistant)
		if m.Role == domain.RoleUser {
			role = string(domain.RoleUser)
		}
		msgs = append(msgs, chatMessage{Role: role, Content: m.Content})
	}
	return chatRequest{Model: req.Model, Messages: msgs, Stream: true}
}

// Stream issues a single streaming chat completions request.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	if req.Credential == "" {
		return nil, model.ErrMissingCredential
	}
	slog.Debug("OpenRouter.Stream", "model", req.Model, "messageCount", len(req.Messages))

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &model.StatusError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	return newEventStream(resp.Body, cancel), nil
}

// eventStream reads "data: " lines from a completions response.
type eventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
	done   bool
}

func newEventStream(body io.ReadCloser, cancel context.CancelFunc) *eventStream {
	return &eventStream{
		body:   body,
		reader: bufio.NewReaderSize(body, 64*1024),
		cancel: cancel,
	}
}

// Recv returns the delta content of the next parsable payload. Lines that are
// not valid JSON are skipped; a "[DONE]" line ends the stream.
func (s *eventStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		line, err := s.reader.ReadString('\n')
		if text, ok, perr := s.parseLine(line); perr != nil {
			return "", perr
		} else if ok {
			return text, nil
		}
		if s.done {
			return "", io.EOF
		}
		if err == io.EOF {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("stream read error: %w", err)
		}
	}
}

func (s *eventStream) parseLine(line string) (string, bool, error) {
	line = strings.TrimRight(line, "\r\n")
	data, found := strings.CutPrefix(line, "data: ")
	if !found {
		return "", false, nil
	}
	if data == doneMarker {
		s.done = true
		return "", false, nil
	}
	if !gjson.Valid(data) {
		slog.Debug("Skipping malformed stream payload", "data", data)
		return "", false, nil
	}
	if msg := gjson.Get(data, "error.message"); msg.Exists() {
		return "", false, fmt.Errorf("openrouter stream error: %s", msg.String())
	}
	delta := gjson.Get(data, "choices.0.delta")
	if !delta.Exists() {
		return "", false, nil
	}
	return delta.Get("content").String(), true, nil
}

func (s *eventStream) Close() error {
	s.done = true
	s.cancel()
	return s.body.Close()
}
