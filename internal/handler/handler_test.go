package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/careerpath/internal/apiclient"
	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/push"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/storage"
	"github.com/careerpath/internal/storage/memory"
)

const scope = "6f1c2a7e-8a43-4c5e-9d55-0f3b8c1d2e4f"

func mint(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": exp.Unix()}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

type fixture struct {
	backend  *memory.Client
	sessions *session.Manager
	api      *apiclient.Client
	upstream *httptest.Server
	token    string
	lastAuth string
	lastLang string
	lastCall upstreamCall
}

type upstreamCall struct {
	method      string
	path        string
	query       string
	contentType string
	body        string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{backend: memory.New(), token: mint(t, time.Now().Add(time.Hour))}
	f.sessions = session.NewManager(f.backend)
	f.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.lastLang = r.Header.Get("Accept-Language")
		body, _ := io.ReadAll(r.Body)
		f.lastCall = upstreamCall{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		}
		switch r.URL.Path {
		case "/auth/login":
			var req apiclient.LoginRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Password != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"detail":"Invalid email or password"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": f.token,
				"user":         map[string]string{"id": "1", "name": "Ann", "email": req.Email},
			})
		case "/auth/signup":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":[{"msg":"value is not a valid email address"}]}`))
		case "/progress/status":
			if r.Header.Get("Authorization") != "Bearer "+f.token {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Invalid token"}`))
				return
			}
			_, _ = w.Write([]byte(`{"completed_skills":["go"]}`))
		case "/progress/mark-complete", "/auth/profile", "/upload_resume", "/generate_roadmap":
			_, _ = w.Write([]byte(`{"ok":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.upstream.Close)
	f.api = apiclient.New(f.upstream.URL, 2*time.Second)
	return f
}

func (f *fixture) do(h http.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req = req.WithContext(middleware.WithScope(req.Context(), scope))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func (f *fixture) stored(key string) string {
	v, _ := f.backend.Get(context.Background(), scope, key)
	return v
}

func TestLoginStoresSessionAndRedirects(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(f.api, f.sessions)

	rec := f.do(h.Login, http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body.String())
	}
	var res struct {
		Redirect string `json:"redirect"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Redirect != "/dashboard" {
		t.Fatalf("redirect = %q", res.Redirect)
	}
	if f.stored(storage.TokenKey) != f.token || !strings.Contains(f.stored(storage.ProfileKey), "ann@example.com") {
		t.Fatalf("credentials not stored")
	}

	rec = f.do(NewSessionHandler(f.sessions).Get, http.MethodGet, "/api/session", "")
	if !strings.Contains(rec.Body.String(), `"logged_in":true`) || !strings.Contains(rec.Body.String(), `"Ann"`) {
		t.Fatalf("session = %s", rec.Body.String())
	}
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)
	h := NewAuthHandler(f.api, f.sessions)

	rec := f.do(h.Login, http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"wrong"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Invalid email or password") {
		t.Fatalf("wrong password: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(h.Login, http.MethodPost, "/auth/login", `{"email":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty email: %d", rec.Code)
	}
	rec = f.do(h.Signup, http.MethodPost, "/auth/signup", `{"name":"A","email":"bad","password":"x"}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "not a valid email") {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	if f.stored(storage.TokenKey) != "" {
		t.Fatalf("failed login stored a token")
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.backend.Set(ctx, scope, storage.TokenKey, f.token)
	_ = f.backend.Set(ctx, scope, storage.ProfileKey, `{"email":"a@b.c"}`)
	h := NewAuthHandler(f.api, f.sessions)

	for i := 0; i < 2; i++ {
		rec := f.do(h.Logout, http.MethodPost, "/auth/logout", "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"redirect":"/"`) {
			t.Fatalf("logout #%d: %d %s", i, rec.Code, rec.Body.String())
		}
	}
	if f.stored(storage.TokenKey) != "" || f.stored(storage.ProfileKey) != "" {
		t.Fatalf("credentials remain after logout")
	}
	rec := f.do(NewSessionHandler(f.sessions).Get, http.MethodGet, "/api/session", "")
	if strings.TrimSpace(rec.Body.String()) != `{"logged_in":false}` {
		t.Fatalf("session = %s", rec.Body.String())
	}
}

func TestPageAttachesTokenAndLanguage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.backend.Set(ctx, scope, storage.TokenKey, f.token)
	_ = f.backend.Set(ctx, scope, storage.LanguageKey, "fr")
	h := NewPageHandler(f.api, f.sessions, "/login")

	rec := f.do(h.Serve(Page{Path: "/progress", Resource: "/progress/status"}), http.MethodGet, "/progress", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d %s", rec.Code, rec.Body.String())
	}
	if f.lastLang != "fr" || f.lastAuth != "Bearer "+f.token {
		t.Fatalf("upstream saw auth=%q lang=%q", f.lastAuth, f.lastLang)
	}
	if !strings.Contains(rec.Body.String(), `"completed_skills":["go"]`) {
		t.Fatalf("body = %s", rec.Body.String())
	}

	markComplete := Action{Method: http.MethodPost, Path: "/progress/mark-complete", Resource: "/progress/mark-complete"}
	rec = f.do(h.Action(markComplete), http.MethodPost, "/api/progress/mark-complete", `{"skill":"go"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("action: %d %s", rec.Code, rec.Body.String())
	}
	rec = f.do(h.Action(markComplete), http.MethodPost, "/api/progress/mark-complete", `{bad`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: %d", rec.Code)
	}
}

func findAction(t *testing.T, method, path string) Action {
	t.Helper()
	for _, a := range Actions {
		if a.Method == method && a.Path == path {
			return a
		}
	}
	t.Fatalf("no action %s %s", method, path)
	return Action{}
}

func TestProfileSaveUsesPut(t *testing.T) {
	f := newFixture(t)
	_ = f.backend.Set(context.Background(), scope, storage.TokenKey, f.token)
	h := NewPageHandler(f.api, f.sessions, "/login")

	rec := f.do(h.Action(findAction(t, http.MethodPut, "/auth/profile")), http.MethodPut, "/api/auth/profile", `{"name":"Ann B"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d %s", rec.Code, rec.Body.String())
	}
	got := f.lastCall
	if got.method != http.MethodPut || got.path != "/auth/profile" || got.body != `{"name":"Ann B"}` {
		t.Fatalf("upstream saw %+v", got)
	}
	if got.contentType != "application/json" || f.lastAuth != "Bearer "+f.token {
		t.Fatalf("upstream content-type=%q auth=%q", got.contentType, f.lastAuth)
	}
}

func TestResumeUploadPassesMultipartThrough(t *testing.T) {
	f := newFixture(t)
	_ = f.backend.Set(context.Background(), scope, storage.TokenKey, f.token)
	h := NewPageHandler(f.api, f.sessions, "/login")
	upload := findAction(t, http.MethodPost, "/upload_resume")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "cv.pdf")
	_, _ = part.Write([]byte("%PDF-1.4 resume"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload_resume", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(middleware.WithScope(req.Context(), scope))
	rec := httptest.NewRecorder()
	h.Action(upload)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d %s", rec.Code, rec.Body.String())
	}
	got := f.lastCall
	if got.contentType != mw.FormDataContentType() {
		t.Fatalf("content-type = %q", got.contentType)
	}
	if !strings.Contains(got.body, "%PDF-1.4 resume") || !strings.Contains(got.body, `name="file"`) {
		t.Fatalf("body not forwarded: %q", got.body)
	}

	rec = f.do(h.Action(upload), http.MethodPost, "/api/upload_resume", `{"file":"x"}`)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("json upload: code = %d", rec.Code)
	}
}

func TestGetActionForwardsQuery(t *testing.T) {
	f := newFixture(t)
	_ = f.backend.Set(context.Background(), scope, storage.TokenKey, f.token)
	h := NewPageHandler(f.api, f.sessions, "/login")

	rec := f.do(h.Action(findAction(t, http.MethodGet, "/generate_roadmap")), http.MethodGet, "/api/generate_roadmap?role=backend", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d %s", rec.Code, rec.Body.String())
	}
	if f.lastCall.method != http.MethodGet || f.lastCall.query != "role=backend" || f.lastCall.body != "" {
		t.Fatalf("upstream saw %+v", f.lastCall)
	}
}

func TestPageUnauthorizedWipesAndRedirects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.backend.Set(ctx, scope, storage.TokenKey, "revoked.by.backend")
	_ = f.backend.Set(ctx, scope, storage.ProfileKey, `{"email":"a@b.c"}`)
	h := NewPageHandler(f.api, f.sessions, "/login")

	rec := f.do(h.Serve(Page{Path: "/progress", Resource: "/progress/status"}), http.MethodGet, "/progress", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("code=%d location=%q", rec.Code, rec.Header().Get("Location"))
	}
	if f.stored(storage.TokenKey) != "" || f.stored(storage.ProfileKey) != "" {
		t.Fatalf("401 did not wipe credentials")
	}
}

func TestLanguage(t *testing.T) {
	f := newFixture(t)
	h := NewLanguageHandler(f.backend)

	rec := f.do(h.Get, http.MethodGet, "/api/language", "")
	if !strings.Contains(rec.Body.String(), `"en"`) {
		t.Fatalf("default = %s", rec.Body.String())
	}
	rec = f.do(h.Put, http.MethodPut, "/api/language", `{"language":"DE"}`)
	if rec.Code != http.StatusOK || f.stored(storage.LanguageKey) != "de" {
		t.Fatalf("put: %d stored=%q", rec.Code, f.stored(storage.LanguageKey))
	}
	rec = f.do(h.Put, http.MethodPut, "/api/language", `{"language":"xx"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported: %d", rec.Code)
	}
}

func TestPushSubscribe(t *testing.T) {
	f := newFixture(t)
	h := NewPushHandler(push.NewNotifier(f.backend, nil, "", "/login"))

	rec := f.do(h.Subscribe, http.MethodPost, "/api/push/subscribe", `{"subscription":{"endpoint":"ftp://x"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid: %d", rec.Code)
	}
	body := `{"subscription":{"endpoint":"https://push.example.com/1","keys":{"p256dh":"p","auth":"a"}}}`
	rec = f.do(h.Subscribe, http.MethodPost, "/api/push/subscribe", body)
	if rec.Code != http.StatusNoContent || f.stored(storage.PushSubscriptionKey) == "" {
		t.Fatalf("subscribe: %d", rec.Code)
	}
	rec = f.do(h.Unsubscribe, http.MethodDelete, "/api/push/subscribe", "")
	if rec.Code != http.StatusNoContent || f.stored(storage.PushSubscriptionKey) != "" {
		t.Fatalf("unsubscribe: %d", rec.Code)
	}
}
