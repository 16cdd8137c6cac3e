package handler

import (
	"net/http"
	"time"

	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/model"
	"github.com/careerpath/internal/session"
)

// SessionHandler отдаёт состояние шапки: вошёл ли пользователь и кто он.
// Состояние выводится из хранилища заново на каждый запрос.
type SessionHandler struct {
	sessions *session.Manager
}

func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionResponse struct {
	LoggedIn  bool           `json:"logged_in"`
	User      *model.Profile `json:"user,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.For(middleware.GetScope(r.Context())).Current(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	exp := s.ExpiresAt.UTC()
	writeJSON(w, http.StatusOK, sessionResponse{LoggedIn: true, User: &s.User, ExpiresAt: &exp})
}
