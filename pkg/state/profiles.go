package state

import (
	"context"
	"fmt"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/store"
)

// Profiles returns every profile.
func (s *State) Profiles() []domain.AIProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AIProfile(nil), s.profiles...)
}

// Profile returns the profile with the given id.
func (s *State) Profile(id string) (domain.AIProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.profileIndex(id)
	if i < 0 {
		return domain.AIProfile{}, ErrNotFound
	}
	return s.profiles[i], nil
}

// ActiveProfile returns the selected profile, or the first profile if the
// selection is stale.
func (s *State) ActiveProfile() domain.AIProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[s.activeProfileIndex()]
}

// ActiveRoute returns the active profile together with its cached route.
func (s *State) ActiveRoute() (domain.AIProfile, domain.Route) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.profiles[s.activeProfileIndex()]
	return p, s.routes[p.ID]
}

// SelectProfile makes id the active profile and clears the active conversation.
func (s *State) SelectProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.profileIndex(id) < 0 {
		return ErrNotFound
	}
	s.settings.ActiveProfileID = id
	s.settings.ActiveConversationID = nil
	if err := s.persist(ctx, store.KeySettings); err != nil {
		return err
	}
	s.notify("")
	return nil
}

// CreateProfile appends a profile built from the new-profile template.
func (s *State) CreateProfile(ctx context.Context) (domain.AIProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := domain.NewProfile(s.newID())
	s.profiles = append(s.profiles, p)
	s.routes[p.ID] = domain.ResolveRoute(p.Model, s.settings.OpenRouterAPIKey)

	if err := s.persist(ctx, store.KeyProfiles); err != nil {
		return domain.AIProfile{}, err
	}
	s.notify("")
	return p, nil
}

// ProfilePatch lists the editable profile attributes. Nil fields are left as is.
type ProfilePatch struct {
	Name         *string  `json:"name,omitempty"`
	SystemPrompt *string  `json:"systemPrompt,omitempty"`
	Model        *string  `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// UpdateProfile applies patch to a profile. Temperature is clamped to [0,1]
// and the profile's route is re-resolved.
func (s *State) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (domain.AIProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.profileIndex(id)
	if i < 0 {
		return domain.AIProfile{}, ErrNotFound
	}
	p := &s.profiles[i]
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.SystemPrompt != nil {
		p.SystemPrompt = *patch.SystemPrompt
	}
	if patch.Model != nil {
		p.Model = *patch.Model
	}
	if patch.Temperature != nil {
		p.Temperature = min(max(*patch.Temperature, 0), 1)
	}
	s.routes[p.ID] = domain.ResolveRoute(p.Model, s.settings.OpenRouterAPIKey)

	if err := s.persist(ctx, store.KeyProfiles); err != nil {
		return domain.AIProfile{}, err
	}
	s.notify("")
	return *p, nil
}

// DeleteProfile removes a non-default profile together with its
// conversations. Active references to either fall back to the default profile
// and no conversation.
func (s *State) DeleteProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.profileIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	if s.profiles[i].IsDefault {
		return ErrDefaultProfile
	}
	s.profiles = append(s.profiles[:i], s.profiles[i+1:]...)
	delete(s.routes, id)

	kept := s.conversations[:0]
	for _, c := range s.conversations {
		if c.ProfileID != id {
			kept = append(kept, c)
		}
	}
	s.conversations = kept

	if s.settings.ActiveProfileID == id {
		s.settings.ActiveProfileID = s.fallbackProfileID()
		s.settings.ActiveConversationID = nil
	}
	if a := s.settings.ActiveConversationID; a != nil && s.conversationIndex(*a) < 0 {
		s.settings.ActiveConversationID = nil
	}

	if err := s.persist(ctx, store.KeyProfiles, store.KeyConversations, store.KeySettings); err != nil {
		return err
	}
	s.notify("")
	return nil
}

func (s *State) fallbackProfileID() string {
	for _, p := range s.profiles {
		if p.IsDefault {
			return p.ID
		}
	}
	return s.profiles[0].ID
}

// SetMemoryField replaces a single memory field of a profile.
func (s *State) SetMemoryField(ctx context.Context, profileID string, field domain.MemoryField, value string) error {
	return s.updateMemory(ctx, profileID, func(m domain.UserMemory) (domain.UserMemory, error) {
		out, ok := m.With(field, value)
		if !ok {
			return m, fmt.Errorf("%w: unknown memory field %q", ErrInvalid, field)
		}
		return out, nil
	})
}

// SetMemory replaces a profile's memory wholesale.
func (s *State) SetMemory(ctx context.Context, profileID string, mem domain.UserMemory) error {
	return s.updateMemory(ctx, profileID, func(domain.UserMemory) (domain.UserMemory, error) {
		return mem, nil
	})
}

// PurgeMemory resets every memory field of a profile.
func (s *State) PurgeMemory(ctx context.Context, profileID string) error {
	return s.SetMemory(ctx, profileID, domain.UserMemory{})
}

// SetSummary replaces the memory summary. Only the summary field is touched,
// so concurrent edits to the other fields are preserved.
func (s *State) SetSummary(ctx context.Context, profileID, summary string) error {
	return s.SetMemoryField(ctx, profileID, domain.MemorySummary, summary)
}

func (s *State) updateMemory(ctx context.Context, profileID string, fn func(domain.UserMemory) (domain.UserMemory, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.profileIndex(profileID)
	if i < 0 {
		return ErrNotFound
	}
	mem, err := fn(s.profiles[i].Memory)
	if err != nil {
		return err
	}
	s.profiles[i].Memory = mem

	if err := s.persist(ctx, store.KeyProfiles); err != nil {
		return err
	}
	s.notify("")
	return nil
}
