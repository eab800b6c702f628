// Package registry tracks the selectable models: the built-in primary list
// followed by whatever the secondary provider advertises.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nstogner/vivica/pkg/domain"
)

// Lister fetches a provider's model catalogue.
type Lister interface {
	List(ctx context.Context) ([]domain.Model, error)
}

// Registry merges the built-in models with the secondary catalogue.
type Registry struct {
	lister Lister

	mu       sync.RWMutex
	external []domain.Model
}

// New creates a Registry that only knows the built-in models until Refresh
// is called with a credential.
func New(lister Lister) *Registry {
	return &Registry{lister: lister}
}

// Models returns the built-in models followed by the external ones.
func (r *Registry) Models() []domain.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Model, 0, len(domain.GeminiModels)+len(r.external))
	out = append(out, domain.GeminiModels...)
	return append(out, r.external...)
}

// Refresh reloads the external catalogue. An empty credential clears it back
// to the built-ins without a request. On fetch failure the previous list is
// kept.
func (r *Registry) Refresh(ctx context.Context, credential string) error {
	if credential == "" {
		r.mu.Lock()
		r.external = nil
		r.mu.Unlock()
		return nil
	}

	models, err := r.lister.List(ctx)
	if err != nil {
		slog.Warn("Model catalogue fetch failed", "error", err)
		return fmt.Errorf("fetching models: %w", err)
	}

	r.mu.Lock()
	r.external = models
	r.mu.Unlock()
	slog.Debug("Model catalogue refreshed", "external", len(models))
	return nil
}
