package middleware

import (
	"net/http"
	"time"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/session"
)

// RequestLog пишет метод, путь, статус и маскированную область клиента (асинхронно).
// Подключается после ClientScope, иначе область пустая.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrap, r)
		scope := GetScope(r.Context())
		if scope == "" {
			logger.Infof("http %s %s -> %d (%s)", r.Method, r.URL.Path, wrap.status, time.Since(start))
			return
		}
		logger.Infof("http %s %s scope=%s -> %d (%s)", r.Method, r.URL.Path, session.MaskScope(scope), wrap.status, time.Since(start))
	})
}
