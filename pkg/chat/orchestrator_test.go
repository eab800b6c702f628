package chat

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/model"
	"github.com/nstogner/vivica/pkg/state"
	"github.com/nstogner/vivica/pkg/store/jsonfile"
)

// scriptedStream yields fragments, then err (or io.EOF). If gate is set, the
// first Recv blocks until it is closed.
type scriptedStream struct {
	fragments []string
	err       error
	gate      chan struct{}
	closed    bool
}

func (s *scriptedStream) Recv() (string, error) {
	if s.gate != nil {
		<-s.gate
		s.gate = nil
	}
	if len(s.fragments) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	f := s.fragments[0]
	s.fragments = s.fragments[1:]
	return f, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type mockStreamer struct {
	streams   []*scriptedStream
	openErr   error
	calls     int
	histories [][]domain.Message
	useMemory []bool
	observe   func()
}

func (m *mockStreamer) StreamChat(ctx context.Context, history []domain.Message, profile domain.AIProfile, route domain.Route, useMemory bool) (model.Stream, error) {
	m.calls++
	m.histories = append(m.histories, history)
	m.useMemory = append(m.useMemory, useMemory)
	if m.observe != nil {
		m.observe()
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	s := m.streams[0]
	m.streams = m.streams[1:]
	return s, nil
}

type mockSummarizer struct {
	results []string
	err     error
	calls   int
}

func (m *mockSummarizer) Summarize(ctx context.Context, messages []domain.Message, profile domain.AIProfile) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r, nil
}

func newTestState(t *testing.T) *state.State {
	t.Helper()
	st, err := jsonfile.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	s, err := state.Load(context.Background(), st)
	if err != nil {
		t.Fatalf("failed to load state: %v", err)
	}
	return s
}

func activeMessages(t *testing.T, s *state.State) []domain.Message {
	t.Helper()
	c, ok := s.ActiveConversation()
	if !ok {
		t.Fatal("no active conversation")
	}
	return c.Messages
}

func TestSendHelloScenario(t *testing.T) {
	s := newTestState(t)
	stream := &scriptedStream{fragments: []string{"Hi", " there"}}

	var placeholderSeen bool
	streamer := &mockStreamer{streams: []*scriptedStream{stream}}
	streamer.observe = func() {
		msgs := activeMessages(t, s)
		placeholderSeen = len(msgs) == 2 &&
			msgs[0].Role == domain.RoleUser && msgs[0].Content == "Hello" &&
			msgs[1].Role == domain.RoleAssistant && msgs[1].Content == ""
	}
	o := New(s, streamer, nil)

	turn, err := o.Send(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !placeholderSeen {
		t.Error("assistant placeholder was not in place before streaming began")
	}

	c, _ := s.ActiveConversation()
	if c.Title != "Hello" {
		t.Errorf("Title = %q, want Hello", c.Title)
	}
	if len(c.Messages) != 2 || c.Messages[1].Content != "Hi there" || c.Messages[1].IsError {
		t.Fatalf("Messages = %+v", c.Messages)
	}
	if turn.Assistant.Content != "Hi there" || turn.Assistant.ID != c.Messages[1].ID {
		t.Errorf("Turn = %+v", turn)
	}
	if !stream.closed {
		t.Error("stream was not closed")
	}
	if o.Generating() {
		t.Error("generation flag still set")
	}
	if len(streamer.histories[0]) != 1 || streamer.histories[0][0].Content != "Hello" {
		t.Errorf("history = %+v", streamer.histories[0])
	}
	if !streamer.useMemory[0] {
		t.Error("new conversations should attach memory")
	}
}

func TestSendAccumulatesExactlyOnce(t *testing.T) {
	fragments := []string{"a", "", "bc", "d", "", "efg"}
	s := newTestState(t)
	o := New(s, &mockStreamer{streams: []*scriptedStream{{fragments: append([]string(nil), fragments...)}}}, nil)

	if _, err := o.Send(context.Background(), "go"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := activeMessages(t, s)[1].Content; got != "abcdefg" {
		t.Errorf("content = %q, want abcdefg", got)
	}
}

func TestSendBlankIsNoop(t *testing.T) {
	s := newTestState(t)
	streamer := &mockStreamer{}
	o := New(s, streamer, nil)

	turn, err := o.Send(context.Background(), "  \n\t")
	if turn != nil || err != nil {
		t.Errorf("Send(blank) = %+v, %v", turn, err)
	}
	if streamer.calls != 0 || len(s.Conversations()) != 0 {
		t.Error("blank send had side effects")
	}
}

func TestSendWhileBusyIsNoop(t *testing.T) {
	s := newTestState(t)
	gate := make(chan struct{})
	streamer := &mockStreamer{streams: []*scriptedStream{{fragments: []string{"ok"}, gate: gate}}}
	o := New(s, streamer, nil)

	done := make(chan error)
	go func() {
		_, err := o.Send(context.Background(), "first")
		done <- err
	}()

	// The placeholder is appended immediately before the stream is opened.
	waitFor(t, func() bool {
		c, ok := s.ActiveConversation()
		return ok && len(c.Messages) == 2
	})

	turn, err := o.Send(context.Background(), "second")
	if turn != nil || err != nil {
		t.Errorf("concurrent Send = %+v, %v; want no-op", turn, err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first Send: %v", err)
	}

	msgs := activeMessages(t, s)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want exactly one user and one assistant", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "ok" {
		t.Errorf("Messages = %+v", msgs)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSendMissingCredential(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	external := "openai/gpt-4o"
	if _, err := s.UpdateProfile(ctx, domain.DefaultProfileID, state.ProfilePatch{Model: &external}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}

	secondary := &countingProvider{}
	o := New(s, model.NewRouter(nil, secondary), nil)

	turn, err := o.Send(ctx, "Hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "Error: " + model.ErrMissingCredential.Error()
	msgs := activeMessages(t, s)
	if len(msgs) != 2 || msgs[1].Content != want || !msgs[1].IsError {
		t.Fatalf("Messages = %+v", msgs)
	}
	if !turn.Assistant.IsError {
		t.Error("Turn.Assistant not marked errored")
	}
	if secondary.streams != 0 {
		t.Errorf("secondary provider called %d times", secondary.streams)
	}
	if o.Generating() {
		t.Error("generation flag still set after failure")
	}
}

type countingProvider struct{ streams int }

func (p *countingProvider) Name() string { return "counting" }
func (p *countingProvider) List(ctx context.Context) ([]domain.Model, error) {
	return nil, nil
}
func (p *countingProvider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	p.streams++
	return &scriptedStream{}, nil
}

func TestSendMidStreamFailure(t *testing.T) {
	s := newTestState(t)
	boom := errors.New("connection reset")
	o := New(s, &mockStreamer{streams: []*scriptedStream{{fragments: []string{"par"}, err: boom}}}, nil)

	if _, err := o.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs := activeMessages(t, s)
	if msgs[1].Content != "Error: connection reset" || !msgs[1].IsError {
		t.Errorf("assistant = %+v", msgs[1])
	}
	if msgs[0].IsError {
		t.Error("user message marked errored")
	}
}

func TestRetryCreatesNewTurn(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	streamer := &mockStreamer{streams: []*scriptedStream{
		{err: errors.New("503")},
		{fragments: []string{"recovered"}},
	}}
	o := New(s, streamer, nil)

	first, err := o.Send(ctx, "question")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	errored := activeMessages(t, s)[1]

	second, err := o.Retry(ctx, errored.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}

	msgs := activeMessages(t, s)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if msgs[1] != errored {
		t.Errorf("errored message modified: %+v -> %+v", errored, msgs[1])
	}
	if msgs[2].Content != "question" || msgs[3].Content != "recovered" {
		t.Errorf("retry turn = %+v, %+v", msgs[2], msgs[3])
	}
	if second.User.ID == first.User.ID || second.Assistant.ID == first.Assistant.ID {
		t.Error("retry reused message ids")
	}
	if len(streamer.histories[1]) != 3 {
		t.Errorf("retry history length = %d, want 3", len(streamer.histories[1]))
	}
}

func TestRetryRejectsNonErrored(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	o := New(s, &mockStreamer{streams: []*scriptedStream{{fragments: []string{"fine"}}}}, nil)
	o.Send(ctx, "q")
	msgs := activeMessages(t, s)

	if _, err := o.Retry(ctx, msgs[1].ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Retry(ok reply) err = %v, want ErrNotRetryable", err)
	}
	if _, err := o.Retry(ctx, msgs[0].ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Retry(user msg) err = %v, want ErrNotRetryable", err)
	}
	if _, err := o.Retry(ctx, "missing"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("Retry(missing) err = %v, want ErrNotFound", err)
	}
}

func TestSendUsesConversationMemoryToggle(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	c, _ := s.NewWorkspace(ctx)
	s.SetConversationMemoryEnabled(ctx, c.ID, false)

	streamer := &mockStreamer{streams: []*scriptedStream{{}}}
	o := New(s, streamer, nil)
	o.Send(ctx, "hi")

	if streamer.useMemory[0] {
		t.Error("memory attached although disabled for the conversation")
	}
	got, _ := s.Conversation(c.ID)
	if got.Title != domain.NewConversationTitle {
		t.Errorf("existing conversation retitled to %q", got.Title)
	}
}

func TestSyncMemoryReplacesSummary(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	o := New(s,
		&mockStreamer{streams: []*scriptedStream{{fragments: []string{"hello"}}}},
		&mockSummarizer{results: []string{"- first", "- second"}},
	)
	o.Send(ctx, "hi")

	for _, want := range []string{"- first", "- second"} {
		got, err := o.SyncMemory(ctx)
		if err != nil {
			t.Fatalf("SyncMemory: %v", err)
		}
		if got != want {
			t.Errorf("SyncMemory = %q, want %q", got, want)
		}
	}
	p := s.ActiveProfile()
	if p.Memory.Summary != "- second" {
		t.Errorf("Summary = %q, want the second result only", p.Memory.Summary)
	}
	if o.Summarizing() {
		t.Error("summarizing flag still set")
	}
}

func TestSyncMemoryGuards(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	summarizer := &mockSummarizer{err: errors.New("unused")}
	o := New(s, nil, summarizer)

	if got, err := o.SyncMemory(ctx); got != "" || err != nil {
		t.Errorf("SyncMemory without conversation = %q, %v", got, err)
	}
	s.NewWorkspace(ctx)
	if got, err := o.SyncMemory(ctx); got != "" || err != nil {
		t.Errorf("SyncMemory on empty conversation = %q, %v", got, err)
	}
	if summarizer.calls != 0 {
		t.Errorf("summarizer called %d times", summarizer.calls)
	}
}

func TestSyncMemoryError(t *testing.T) {
	s := newTestState(t)
	ctx := context.Background()
	boom := errors.New("quota")
	o := New(s, &mockStreamer{streams: []*scriptedStream{{fragments: []string{"x"}}}}, &mockSummarizer{err: boom})
	o.Send(ctx, "hi")
	s.SetSummary(ctx, domain.DefaultProfileID, "kept")

	if _, err := o.SyncMemory(ctx); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if got := s.ActiveProfile().Memory.Summary; got != "kept" {
		t.Errorf("Summary = %q after failed sync", got)
	}
}

func TestTitle(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	if got := Title(long); got != long[:32] {
		t.Errorf("Title = %q", got)
	}
	if got := Title("héllo wörld"); got != "héllo wörld" {
		t.Errorf("Title = %q", got)
	}
	runes := "日本語のテキストを三十二文字以上書いてタイトルが途中で切れることを確認するためのテスト"
	if got := []rune(Title(runes)); len(got) != 32 {
		t.Errorf("Title rune count = %d, want 32", len(got))
	}
}
