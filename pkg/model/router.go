package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/prompt"
)

// Router dispatches a chat turn to the transport selected by a resolved route.
type Router struct {
	primary   Provider
	secondary Provider
}

// NewRouter creates a Router. Either provider may be nil, in which case
// requests routed to it fail.
func NewRouter(primary, secondary Provider) *Router {
	return &Router{primary: primary, secondary: secondary}
}

// StreamChat composes the system instruction for profile and opens a stream
// on the back-end named by route.
func (r *Router) StreamChat(ctx context.Context, history []domain.Message, profile domain.AIProfile, route domain.Route, useMemory bool) (Stream, error) {
	req := Request{
		Model:        profile.Model,
		Instructions: prompt.Build(profile, useMemory),
		Temperature:  profile.Temperature,
		Messages:     FromHistory(history),
	}

	var p Provider
	switch route.Backend {
	case domain.BackendPrimary:
		p = r.primary
	case domain.BackendSecondary:
		if route.Credential == "" {
			return nil, ErrMissingCredential
		}
		req.Credential = route.Credential
		p = r.secondary
	default:
		return nil, fmt.Errorf("unresolved route for model %q", profile.Model)
	}
	if p == nil {
		return nil, fmt.Errorf("no %s provider configured", route.Backend)
	}

	slog.Debug("Router.StreamChat", "provider", p.Name(), "model", req.Model, "messageCount", len(req.Messages))
	return p.Stream(ctx, req)
}
