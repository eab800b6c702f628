package state

import (
	"context"
	"fmt"
	"sort"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/store"
)

// Conversations returns every conversation in storage order.
func (s *State) Conversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = c.Clone()
	}
	return out
}

// ProfileConversations returns the active profile's conversations, most
// recently updated first.
func (s *State) ProfileConversations() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profileID := s.profiles[s.activeProfileIndex()].ID
	var out []domain.Conversation
	for _, c := range s.conversations {
		if c.ProfileID == profileID {
			out = append(out, c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}

// Conversation returns a copy of the conversation with the given id.
func (s *State) Conversation(id string) (domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.conversationIndex(id)
	if i < 0 {
		return domain.Conversation{}, ErrNotFound
	}
	return s.conversations[i].Clone(), nil
}

// ActiveConversation returns the selected conversation, if any.
func (s *State) ActiveConversation() (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings.ActiveConversationID == nil {
		return domain.Conversation{}, false
	}
	i := s.conversationIndex(*s.settings.ActiveConversationID)
	if i < 0 {
		return domain.Conversation{}, false
	}
	return s.conversations[i].Clone(), true
}

// CreateConversation opens an empty conversation under the active profile,
// places it first and makes it active.
func (s *State) CreateConversation(ctx context.Context, title string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := domain.Conversation{
		ID:              s.newID(),
		Title:           title,
		LastUpdated:     s.now(),
		Messages:        []domain.Message{},
		ProfileID:       s.profiles[s.activeProfileIndex()].ID,
		IsMemoryEnabled: true,
	}
	s.conversations = append([]domain.Conversation{c}, s.conversations...)
	id := c.ID
	s.settings.ActiveConversationID = &id

	if err := s.persist(ctx, store.KeyConversations, store.KeySettings); err != nil {
		return domain.Conversation{}, err
	}
	s.notify(c.ID)
	return c.Clone(), nil
}

// NewWorkspace opens an empty "New Conversation" and makes it active.
func (s *State) NewWorkspace(ctx context.Context) (domain.Conversation, error) {
	return s.CreateConversation(ctx, domain.NewConversationTitle)
}

// AppendMessage adds msg to the end of a conversation and refreshes its
// LastUpdated. Missing ids and timestamps are filled in.
func (s *State) AppendMessage(ctx context.Context, conversationID string, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.conversationIndex(conversationID)
	if i < 0 {
		return domain.Message{}, ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	s.conversations[i].Messages = append(s.conversations[i].Messages, msg)
	s.conversations[i].LastUpdated = s.now()

	if err := s.persist(ctx, store.KeyConversations); err != nil {
		return domain.Message{}, err
	}
	s.notify(conversationID)
	return msg, nil
}

// SetMessageContent replaces a message's content. It is the hot path while a
// reply streams in and is not persisted; call Commit when the turn settles.
func (s *State) SetMessageContent(conversationID, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.message(conversationID, messageID)
	if err != nil {
		return err
	}
	m.Content = content
	s.notify(conversationID)
	return nil
}

// FailMessage replaces a message's content with an error description and
// marks it errored.
func (s *State) FailMessage(ctx context.Context, conversationID, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.message(conversationID, messageID)
	if err != nil {
		return err
	}
	m.Content = content
	m.IsError = true

	if err := s.persist(ctx, store.KeyConversations); err != nil {
		return err
	}
	s.notify(conversationID)
	return nil
}

// Commit flushes the conversation list, including any content streamed into
// conversationID, and announces the settled conversation.
func (s *State) Commit(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, store.KeyConversations); err != nil {
		return err
	}
	s.notify(conversationID)
	return nil
}

// message returns a pointer into the conversation slice. Callers must hold s.mu.
func (s *State) message(conversationID, messageID string) (*domain.Message, error) {
	i := s.conversationIndex(conversationID)
	if i < 0 {
		return nil, ErrNotFound
	}
	msgs := s.conversations[i].Messages
	for j := range msgs {
		if msgs[j].ID == messageID {
			return &msgs[j], nil
		}
	}
	return nil, ErrNotFound
}

// DeleteConversation removes a conversation, clearing the active reference if
// it pointed there.
func (s *State) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.conversationIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
	keys := []string{store.KeyConversations}
	if a := s.settings.ActiveConversationID; a != nil && *a == id {
		s.settings.ActiveConversationID = nil
		keys = append(keys, store.KeySettings)
	}

	if err := s.persist(ctx, keys...); err != nil {
		return err
	}
	s.notify(id)
	return nil
}

// SelectConversation makes id the active conversation. The owning profile
// becomes the active profile so the next turn runs under its persona.
func (s *State) SelectConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.conversationIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	if owner := s.conversations[i].ProfileID; owner != s.settings.ActiveProfileID {
		if s.profileIndex(owner) < 0 {
			return fmt.Errorf("conversation %s belongs to missing profile %s: %w", id, owner, ErrNotFound)
		}
		s.settings.ActiveProfileID = owner
	}
	s.settings.ActiveConversationID = &id
	if err := s.persist(ctx, store.KeySettings); err != nil {
		return err
	}
	s.notify(id)
	return nil
}

// SetConversationMemoryEnabled toggles whether profile memory is attached to
// the conversation's system instruction.
func (s *State) SetConversationMemoryEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.conversationIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	s.conversations[i].IsMemoryEnabled = enabled
	if err := s.persist(ctx, store.KeyConversations); err != nil {
		return err
	}
	s.notify(id)
	return nil
}
