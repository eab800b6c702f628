package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/vivica/pkg/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// chatRequest is a client frame: either new content or the id of an errored
// assistant message to retry.
type chatRequest struct {
	Content string `json:"content,omitempty"`
	Retry   string `json:"retry,omitempty"`
}

// chatEvent is a server frame.
type chatEvent struct {
	Conversation *domain.Conversation `json:"conversation,omitempty"`
	Generating   bool                 `json:"generating"`
	Error        string               `json:"error,omitempty"`
}

func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	// Turns started from this socket are cancelled when it closes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := s.state.Subscribe()
	defer s.state.Unsubscribe(updates)

	errs := make(chan string, 8)
	done := make(chan struct{})

	// Send initial conversation state.
	if err := s.pushActive(ws, ""); err != nil {
		slog.Error("Failed initial conversation sync", "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer goroutine: the only writer on ws.
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-updates:
				if err := s.pushActive(ws, ""); err != nil {
					slog.Error("Failed conversation sync", "error", err)
					return
				}
			case msg := <-errs:
				if err := s.pushActive(ws, msg); err != nil {
					slog.Error("Failed error push", "error", err)
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop: receives chat requests.
	for {
		var req chatRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if req.Retry != "" {
				_, err = s.chat.Retry(ctx, req.Retry)
			} else {
				_, err = s.chat.Send(ctx, req.Content)
			}
			if err != nil {
				slog.Error("Chat request failed", "error", err)
				select {
				case errs <- err.Error():
				default:
				}
			}
		}()
	}

	cancel()
	close(done)
	wg.Wait()
}

// pushActive writes the active conversation (if any) with an optional error.
func (s *Server) pushActive(ws *websocket.Conn, errMsg string) error {
	ev := chatEvent{Generating: s.chat.Generating(), Error: errMsg}
	if c, ok := s.state.ActiveConversation(); ok {
		ev.Conversation = &c
	}
	return ws.WriteJSON(ev)
}
