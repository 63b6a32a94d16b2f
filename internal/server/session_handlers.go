package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type sessionResponse struct {
	ID             string    `json:"id"`
	UserAgent      string    `json:"user_agent,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	Persistent     bool      `json:"persistent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	currentID, _ := GetSessionID(r.Context())
	sessions, err := s.auth.ListSessions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse{
			ID:             sess.ID,
			UserAgent:      sess.UserAgent,
			IPAddress:      sess.IPAddress,
			Persistent:     sess.Persistent,
			CreatedAt:      sess.CreatedAt,
			LastActivityAt: sess.LastActivityAt,
			ExpiresAt:      sess.ExpiresAt,
			Current:        sess.ID == currentID,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())
	sessionID := chi.URLParam(r, "id")
	if err := s.auth.RevokeSession(r.Context(), userID, sessionID); err != nil {
		writeServiceError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
