package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/careerpath/internal/apiclient"
	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/storage"
)

// Page — защищённая страница и ресурс бэкенда, который она показывает.
type Page struct {
	Path     string
	Resource string
}

// ProtectedPages — страницы за гардом. Данные бэкенда отдаются как есть.
var ProtectedPages = []Page{
	{Path: "/dashboard", Resource: "/analyses/latest"},
	{Path: "/roadmap", Resource: "/roadmaps/latest"},
	{Path: "/skill-gap", Resource: "/analyses/latest"},
	{Path: "/courses", Resource: "/roadmaps/latest"},
	{Path: "/market-trends", Resource: "/market_trends"},
	{Path: "/progress", Resource: "/progress/status"},
	{Path: "/profile", Resource: "/auth/me"},
}

// Action — вызов бэкенда со страницы за гардом. Path монтируется под /api.
type Action struct {
	Method    string
	Path      string
	Resource  string
	Multipart bool
}

// Actions — действия защищённых страниц. JSON-тело и query string пересылаются как есть.
var Actions = []Action{
	{Method: http.MethodPost, Path: "/progress/mark-complete", Resource: "/progress/mark-complete"},
	{Method: http.MethodPost, Path: "/progress/uncomplete", Resource: "/progress/uncomplete"},
	{Method: http.MethodPost, Path: "/roadmaps/save", Resource: "/roadmaps/save"},
	{Method: http.MethodPut, Path: "/auth/profile", Resource: "/auth/profile"},
	{Method: http.MethodPost, Path: "/analyze_resume", Resource: "/analyze_resume"},
	{Method: http.MethodPost, Path: "/upload_resume", Resource: "/upload_resume", Multipart: true},
	{Method: http.MethodGet, Path: "/generate_roadmap", Resource: "/generate_roadmap"},
	{Method: http.MethodPost, Path: "/explain_roadmap", Resource: "/explain_roadmap"},
	{Method: http.MethodPost, Path: "/chatbot", Resource: "/chatbot"},
	{Method: http.MethodGet, Path: "/role-discovery/questions", Resource: "/role-discovery/questions"},
	{Method: http.MethodPost, Path: "/role-discovery/analyze", Resource: "/role-discovery/analyze"},
}

// maxUploadBody — предел multipart-загрузки резюме.
const maxUploadBody = 10 << 20

type PageHandler struct {
	api       *apiclient.Client
	sessions  *session.Manager
	loginPath string
}

func NewPageHandler(api *apiclient.Client, sessions *session.Manager, loginPath string) *PageHandler {
	return &PageHandler{api: api, sessions: sessions, loginPath: loginPath}
}

type pageResponse struct {
	Page string          `json:"page"`
	Data json.RawMessage `json:"data"`
}

// Serve отдаёт страницу с данными ресурса. 401 бэкенда уже очистил хранилище — уводим на вход.
func (h *PageHandler) Serve(p Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := middleware.GetScope(r.Context())
		ctrl := h.sessions.For(scope)
		lang := language(r.Context(), storage.Scope(h.sessions.Backend(), scope))
		data, err := h.api.Get(r.Context(), ctrl, lang, p.Resource)
		if err != nil {
			h.fail(w, r, scope, err)
			return
		}
		writeJSON(w, http.StatusOK, pageResponse{Page: p.Path, Data: data})
	}
}

// Action пересылает запрос в ресурс бэкенда от имени области.
func (h *PageHandler) Action(a Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := middleware.GetScope(r.Context())
		call := apiclient.Call{
			Method:   a.Method,
			Path:     a.Resource,
			Session:  h.sessions.For(scope),
			Language: language(r.Context(), storage.Scope(h.sessions.Backend(), scope)),
		}
		if r.URL.RawQuery != "" {
			call.Path += "?" + r.URL.RawQuery
		}

		switch {
		case a.Multipart:
			ct := r.Header.Get("Content-Type")
			if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "multipart/form-data" {
				writeError(w, http.StatusUnsupportedMediaType, "multipart/form-data required")
				return
			}
			call.RawBody = http.MaxBytesReader(w, r.Body, maxUploadBody)
			call.ContentType = ct
		case a.Method != http.MethodGet:
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
			if err != nil || (len(raw) > 0 && !json.Valid(raw)) {
				writeError(w, http.StatusBadRequest, errBadBody.Error())
				return
			}
			if len(raw) > 0 {
				call.Body = json.RawMessage(raw)
			}
		}

		data, err := h.api.Do(r.Context(), call)
		if err != nil {
			h.fail(w, r, scope, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func (h *PageHandler) fail(w http.ResponseWriter, r *http.Request, scope string, err error) {
	var apiErr *apiclient.APIError
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		http.Redirect(w, r, h.loginPath, http.StatusFound)
	case errors.As(err, &tooBig):
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
	case errors.As(err, &apiErr):
		writeError(w, apiErr.Status, apiErr.Message)
	default:
		logger.Errorf("page %s scope=%s: %v", r.URL.Path, session.MaskScope(scope), err)
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}
