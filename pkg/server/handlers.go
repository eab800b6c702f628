package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nstogner/vivica/pkg/domain"
	"github.com/nstogner/vivica/pkg/state"
)

// --- Profiles ---

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.state.Profiles())
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.state.CreateProfile(r.Context())
	if err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch state.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.state.UpdateProfile(r.Context(), id, patch)
	if err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.state.DeleteProfile(r.Context(), id); err != nil {
		s.stateError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.state.SelectProfile(r.Context(), id); err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.state.Settings())
}

func (s *Server) handleSetMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var mem domain.UserMemory
	if err := json.NewDecoder(r.Body).Decode(&mem); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.state.SetMemory(r.Context(), id, mem); err != nil {
		s.stateError(w, err)
		return
	}
	s.respondProfile(w, id)
}

func (s *Server) handlePurgeMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.state.PurgeMemory(r.Context(), id); err != nil {
		s.stateError(w, err)
		return
	}
	s.respondProfile(w, id)
}

func (s *Server) respondProfile(w http.ResponseWriter, id string) {
	p, err := s.state.Profile(id)
	if err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// --- Conversations ---

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs := s.state.ProfileConversations()
	if convs == nil {
		convs = []domain.Conversation{}
	}
	s.jsonResponse(w, http.StatusOK, convs)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.state.NewWorkspace(r.Context())
	if err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, c)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	c, err := s.state.Conversation(r.PathValue("id"))
	if err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, c)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.state.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		s.stateError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.state.SelectConversation(r.Context(), r.PathValue("id")); err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.state.Settings())
}

func (s *Server) handleSetConversationMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.state.SetConversationMemoryEnabled(r.Context(), id, body.Enabled); err != nil {
		s.stateError(w, err)
		return
	}
	c, err := s.state.Conversation(id)
	if err != nil {
		s.stateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, c)
}

// --- Settings ---

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.state.Settings())
}

type settingsPatch struct {
	OpenRouterAPIKey *string `json:"openRouterApiKey,omitempty"`
	ThemeFamily      *string `json:"themeFamily,omitempty"`
	IsDarkMode       *bool   `json:"isDarkMode,omitempty"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()

	if patch.ThemeFamily != nil {
		if err := s.state.SetTheme(ctx, *patch.ThemeFamily); err != nil {
			s.stateError(w, err)
			return
		}
	}
	if patch.IsDarkMode != nil {
		if err := s.state.SetDarkMode(ctx, *patch.IsDarkMode); err != nil {
			s.stateError(w, err)
			return
		}
	}
	if patch.OpenRouterAPIKey != nil {
		key := *patch.OpenRouterAPIKey
		changed, err := s.state.SetCredential(ctx, key)
		if err != nil {
			s.stateError(w, err)
			return
		}
		if changed {
			if s.saveKey != nil {
				if err := s.saveKey(key); err != nil {
					slog.Warn("Failed to save credential", "error", err)
				}
			}
			if err := s.registry.Refresh(ctx, key); err != nil {
				slog.Warn("Model catalogue refresh failed", "error", err)
			}
		}
	}
	s.jsonResponse(w, http.StatusOK, s.state.Settings())
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.registry.Models())
}

// --- Memory ---

func (s *Server) handleSyncMemory(w http.ResponseWriter, r *http.Request) {
	summary, err := s.chat.SyncMemory(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"summary": summary})
}
