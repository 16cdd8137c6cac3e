package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/careerpath/internal/apiclient"
	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/storage"
)

// Куда уводить клиента после входа и после выхода.
const (
	AfterSignInPath  = "/dashboard"
	AfterSignOutPath = "/"
)

type AuthHandler struct {
	api      *apiclient.Client
	sessions *session.Manager
}

func NewAuthHandler(api *apiclient.Client, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{api: api, sessions: sessions}
}

type authResult struct {
	Redirect string `json:"redirect"`
	User     any    `json:"user,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req apiclient.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	scope := middleware.GetScope(r.Context())
	resp, err := h.api.Login(r.Context(), h.lang(r, scope), req)
	h.finish(w, r, scope, resp, err)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req apiclient.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}
	scope := middleware.GetScope(r.Context())
	resp, err := h.api.Signup(r.Context(), h.lang(r, scope), req)
	h.finish(w, r, scope, resp, err)
}

func (h *AuthHandler) lang(r *http.Request, scope string) string {
	return language(r.Context(), storage.Scope(h.sessions.Backend(), scope))
}

// finish записывает профиль и токен области; ошибки бэкенда отдаются сообщением из detail.
func (h *AuthHandler) finish(w http.ResponseWriter, r *http.Request, scope string, resp *apiclient.AuthResponse, err error) {
	if err != nil {
		var apiErr *apiclient.APIError
		switch {
		case errors.As(err, &apiErr):
			writeError(w, apiErr.Status, apiErr.Message)
		case errors.Is(err, apiclient.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		default:
			logger.Errorf("auth scope=%s: %v", session.MaskScope(scope), err)
			writeError(w, http.StatusBadGateway, "authentication service unavailable")
		}
		return
	}
	if err := h.sessions.For(scope).SignIn(r.Context(), resp.AccessToken, resp.User); err != nil {
		logger.Errorf("auth scope=%s: store credentials: %v", session.MaskScope(scope), err)
		writeError(w, http.StatusInternalServerError, "failed to store session")
		return
	}
	writeJSON(w, http.StatusOK, authResult{Redirect: AfterSignInPath, User: resp.User})
}

// Logout удаляет токен и профиль; идемпотентен.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.For(middleware.GetScope(r.Context())).SignOut(r.Context())
	writeJSON(w, http.StatusOK, authResult{Redirect: AfterSignOutPath})
}
