// Package state holds the process-wide conversations, profiles and settings.
// All mutation goes through the reducer methods on State, which persist the
// affected records and notify subscribers. Readers receive deep copies.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/store"
)

var (
	// ErrNotFound is returned when a conversation, message or profile id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrDefaultProfile is returned when deleting the protected profile.
	ErrDefaultProfile = errors.New("default profile cannot be deleted")
	// ErrInvalid is returned for values outside a field's allowed set.
	ErrInvalid = errors.New("invalid value")
)

// State is the application state container.
type State struct {
	store store.Store

	mu            sync.RWMutex
	conversations []domain.Conversation
	profiles      []domain.AIProfile
	settings      domain.Settings
	routes        map[string]domain.Route

	subMu       sync.RWMutex
	subscribers []chan string

	newID func() string
	now   func() time.Time
}

// Option configures a State.
type Option func(*State)

// WithIDGenerator overrides the id source used for new records.
func WithIDGenerator(fn func() string) Option {
	return func(s *State) { s.newID = fn }
}

// WithClock overrides the time source used for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *State) { s.now = fn }
}

// Load reads the three records from st, falling back to built-in defaults for
// any that are missing. Stored settings are merged over the defaults.
func Load(ctx context.Context, st store.Store, opts ...Option) (*State, error) {
	s := &State{
		store:    st,
		profiles: domain.DefaultProfiles(),
		settings: domain.DefaultSettings(),
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.read(ctx, store.KeyConversations, &s.conversations); err != nil {
		return nil, err
	}
	var profiles []domain.AIProfile
	if err := s.read(ctx, store.KeyProfiles, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) > 0 {
		s.profiles = profiles
	}
	if err := s.read(ctx, store.KeySettings, &s.settings); err != nil {
		return nil, err
	}

	if s.profileIndex(s.settings.ActiveProfileID) < 0 {
		s.settings.ActiveProfileID = s.profiles[0].ID
	}
	if id := s.settings.ActiveConversationID; id != nil && s.conversationIndex(*id) < 0 {
		s.settings.ActiveConversationID = nil
	}
	s.resolveRoutes()

	slog.Debug("State loaded",
		"conversations", len(s.conversations),
		"profiles", len(s.profiles),
		"activeProfileID", s.settings.ActiveProfileID,
	)
	return s, nil
}

func (s *State) read(ctx context.Context, key string, v any) error {
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// persist writes the named records. Callers must hold s.mu.
func (s *State) persist(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		var v any
		switch key {
		case store.KeyConversations:
			v = s.conversations
		case store.KeyProfiles:
			v = s.profiles
		case store.KeySettings:
			v = s.settings
		default:
			return fmt.Errorf("unknown record %q", key)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if err := s.store.Put(ctx, key, data); err != nil {
			return fmt.Errorf("writing %s: %w", key, err)
		}
	}
	return nil
}

// Subscribe returns a channel that receives the id of each conversation that
// changes. Profile and settings changes are announced with an empty id.
func (s *State) Subscribe() <-chan string {
	ch := make(chan string, 64)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to a channel returned by Subscribe.
func (s *State) Unsubscribe(ch <-chan string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			return
		}
	}
}

func (s *State) notify(conversationID string) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- conversationID:
		default:
			// Drop if subscriber is not consuming fast enough.
		}
	}
}

func (s *State) conversationIndex(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) profileIndex(id string) int {
	for i := range s.profiles {
		if s.profiles[i].ID == id {
			return i
		}
	}
	return -1
}

// activeProfileIndex falls back to the first profile when the active id is stale.
func (s *State) activeProfileIndex() int {
	if i := s.profileIndex(s.settings.ActiveProfileID); i >= 0 {
		return i
	}
	return 0
}

func (s *State) resolveRoutes() {
	s.routes = make(map[string]domain.Route, len(s.profiles))
	for _, p := range s.profiles {
		s.routes[p.ID] = domain.ResolveRoute(p.Model, s.settings.OpenRouterAPIKey)
	}
}

func cloneSettings(in domain.Settings) domain.Settings {
	out := in
	if in.ActiveConversationID != nil {
		id := *in.ActiveConversationID
		out.ActiveConversationID = &id
	}
	return out
}
