package middleware

import (
	"context"
	"net/http"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/storage"
	"github.com/careerpath/internal/token"
)

// Decision — решение гарда перед отрисовкой защищённой страницы.
type Decision int

const (
	Render Decision = iota
	Redirect
)

func (d Decision) String() string {
	if d == Redirect {
		return "redirect"
	}
	return "render"
}

// Decide проверяет только наличие токена: просроченный, но сохранённый токен пропускается
// до ближайшей проверки контроллера. Ошибка чтения — как отсутствие токена.
func Decide(ctx context.Context, store storage.CredentialStore) Decision {
	raw, err := store.Get(ctx, storage.TokenKey)
	if err != nil || raw == "" {
		return Redirect
	}
	return Render
}

// SessionGuard — гард защищённых маршрутов. В strict-режиме токен проверяется валидатором,
// а невалидный удаляется через контроллер сессии.
type SessionGuard struct {
	sessions  *session.Manager
	loginPath string
	strict    bool
}

func NewSessionGuard(sessions *session.Manager, loginPath string, strict bool) *SessionGuard {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &SessionGuard{sessions: sessions, loginPath: loginPath, strict: strict}
}

func (g *SessionGuard) LoginPath() string { return g.loginPath }

// Decide для области scope. Сетевых вызовов нет.
func (g *SessionGuard) Decide(ctx context.Context, scope string) Decision {
	if scope == "" {
		return Redirect
	}
	if !g.strict {
		return Decide(ctx, storage.Scope(g.sessions.Backend(), scope))
	}
	if g.sessions.For(scope).Check(ctx) != token.Valid {
		return Redirect
	}
	return Render
}

// Require — chi-middleware: Redirect отдаёт 302 на страницу входа.
func (g *SessionGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := GetScope(r.Context())
		if g.Decide(r.Context(), scope) == Redirect {
			logger.Debugf("guard redirect path=%s scope=%s", r.URL.Path, session.MaskScope(scope))
			http.Redirect(w, r, g.loginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
