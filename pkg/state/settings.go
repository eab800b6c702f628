package state

import (
	"context"
	"fmt"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/store"
)

// Settings returns a copy of the current settings.
func (s *State) Settings() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.settings)
}

// SetCredential stores the OpenRouter key and re-resolves every profile route.
// It reports whether the key changed.
func (s *State) SetCredential(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings.OpenRouterAPIKey == key {
		return false, nil
	}
	s.settings.OpenRouterAPIKey = key
	s.resolveRoutes()

	if err := s.persist(ctx, store.KeySettings); err != nil {
		return true, err
	}
	s.notify("")
	return true, nil
}

// SetTheme selects one of the theme families.
func (s *State) SetTheme(ctx context.Context, family string) error {
	switch family {
	case domain.ThemeAmoled, domain.ThemeBlue, domain.ThemeRed:
	default:
		return fmt.Errorf("%w: unknown theme family %q", ErrInvalid, family)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.ThemeFamily = family
	if err := s.persist(ctx, store.KeySettings); err != nil {
		return err
	}
	s.notify("")
	return nil
}

// SetDarkMode switches between the dark and light variant of the theme.
func (s *State) SetDarkMode(ctx context.Context, dark bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.IsDarkMode = dark
	if err := s.persist(ctx, store.KeySettings); err != nil {
		return err
	}
	s.notify("")
	return nil
}
