package domain

import "strings"

// Backend selects which transport serves a profile's model.
type Backend int

const (
	// BackendPrimary routes to the Gemini transport.
	BackendPrimary Backend = iota + 1
	// BackendSecondary routes to the OpenRouter-compatible transport.
	BackendSecondary
)

func (b Backend) String() string {
	switch b {
	case BackendPrimary:
		return "primary"
	case BackendSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Route is the resolved transport for a profile. Credential is only
// meaningful for BackendSecondary and may be empty, in which case streaming
// fails before any request is made.
type Route struct {
	Backend    Backend
	Credential string
}

// IsPrimaryModel reports whether a model id follows the primary provider's
// naming convention.
func IsPrimaryModel(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "gemini")
}

// ResolveRoute picks the backend for modelID. It is evaluated when a profile
// is selected or edited, or when the credential changes.
func ResolveRoute(modelID, credential string) Route {
	if IsPrimaryModel(modelID) {
		return Route{Backend: BackendPrimary}
	}
	return Route{Backend: BackendSecondary, Credential: credential}
}
