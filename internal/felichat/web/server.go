// Package web exposes the chat relay over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felichat/felichat/internal/felichat/apicall"
	"github.com/felichat/felichat/internal/felichat/chat"
	"github.com/felichat/felichat/internal/felichat/session"
)

// RouteRegistrar is satisfied by *http.ServeMux and by the app's
// HealthServer, so the chat routes can be mounted on either.
type RouteRegistrar interface {
	Handle(pattern string, handler http.Handler)
}

// sessionProvider is the minimal interface the web layer needs from the
// session manager.
type sessionProvider interface {
	Ensure(id string) (*session.Session, error)
}

// turnEngine runs one conversation turn.  *chat.Engine satisfies it.
type turnEngine interface {
	ProcessTurn(ctx context.Context, in chat.TurnInput) chat.TurnResult
}

// chatRequest is the JSON body accepted by POST /chat.
type chatRequest struct {
	// SessionID continues an existing session; empty starts a new one.
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatResponse is the JSON body returned by POST /chat.
type chatResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	SessionID   string `json:"session_id,omitempty"`
	Reply       string `json:"reply,omitempty"`
	ImageB64    string `json:"image_b64,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty"`
	Warning     string `json:"warning,omitempty"`
	TokensUsed  int    `json:"tokens_used,omitempty"`
}

// Server handles the chat HTTP routes.
type Server struct {
	sessions sessionProvider
	engine   turnEngine
}

// New creates a chat Server.
func New(sessions sessionProvider, engine turnEngine) *Server {
	return &Server{sessions: sessions, engine: engine}
}

// RegisterRoutes adds the chat HTTP routes to the given RouteRegistrar:
//
//   - POST /chat — run one conversation turn.
func (srv *Server) RegisterRoutes(r RouteRegistrar) {
	r.Handle("/chat", http.HandlerFunc(srv.handleChat))
}

func (srv *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{
			Status:  "bad_request",
			Message: "invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{
			Status:  "bad_request",
			Message: "message must not be empty",
		})
		return
	}

	s, err := srv.sessions.Ensure(req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			writeJSON(w, http.StatusNotFound, chatResponse{
				Status:  "bad_request",
				Message: "unknown or expired session",
			})
		case errors.Is(err, session.ErrTooManySessions):
			writeJSON(w, http.StatusServiceUnavailable, chatResponse{
				Status:  "bad_request",
				Message: "too many active sessions, try again later",
			})
		default:
			writeJSON(w, http.StatusInternalServerError, chatResponse{
				Status:  "bad_request",
				Message: err.Error(),
			})
		}
		return
	}

	s.BeginTurn()
	defer s.EndTurn()

	mem, log := s.State()
	res := srv.engine.ProcessTurn(r.Context(), chat.TurnInput{
		SessionID: s.ID,
		Seq:       s.Seq(),
		Memory:    mem,
		Log:       log,
		UserText:  req.Message,
	})

	if !res.OK() {
		writeJSON(w, httpStatusFor(res.Status), chatResponse{
			Status:    res.Status.String(),
			Message:   res.Message,
			SessionID: s.ID,
		})
		return
	}

	s.Commit(res.Memory, res.Log)

	writeJSON(w, http.StatusOK, chatResponse{
		Status:      res.Status.String(),
		Message:     res.Message,
		SessionID:   s.ID,
		Reply:       res.Reply,
		ImageB64:    res.ImageB64,
		ImagePrompt: res.ImagePrompt,
		Warning:     res.Warning,
		TokensUsed:  res.TokensUsed,
	})
}

// httpStatusFor maps a turn failure to an HTTP status code.
func httpStatusFor(s apicall.Status) int {
	switch s {
	case apicall.StatusTransport:
		return http.StatusBadGateway
	case apicall.StatusMalformed:
		return http.StatusBadGateway
	case apicall.StatusBudget:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: failed to encode JSON response", "err", err)
	}
}
