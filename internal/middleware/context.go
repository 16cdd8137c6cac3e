package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/session"
)

type contextKey string

const ScopeKey contextKey = "client_scope"

// ClientCookieMaxAge — срок жизни cookie области (браузеры ограничивают 400 днями).
const ClientCookieMaxAge = 400 * 24 * time.Hour

// GetScope возвращает область клиента из контекста (устанавливается ClientScope).
func GetScope(ctx context.Context) string {
	v, _ := ctx.Value(ScopeKey).(string)
	return v
}

func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// ClientScope читает cookie области; если её нет или значение не UUID, выдаёт новую.
// Все вкладки одного браузера получают одну область, как общий localStorage.
func ClientScope(cookieName string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := ""
			if c, err := r.Cookie(cookieName); err == nil {
				if id, err := uuid.Parse(c.Value); err == nil {
					scope = id.String()
				}
			}
			if scope == "" {
				scope = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    scope,
					Path:     "/",
					MaxAge:   int(ClientCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
				logger.Debugf("new client scope=%s", session.MaskScope(scope))
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}
