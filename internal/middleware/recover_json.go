package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/careerpath/internal/logger"
)

// responseWriter запоминает статус и факт записи заголовков.
// Реализует http.Hijacker для websocket upgrade.
type responseWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.status = code
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		w.wrote = true
		w.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RecoverJSON при панике логирует её со стеком и отдаёт JSON 500, если ответ ещё не начат.
// http.ErrAbortHandler пробрасывается дальше.
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}
			logger.Errorf("panic recovered %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
			if !wrap.wrote {
				wrap.ResponseWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
				wrap.ResponseWriter.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(wrap.ResponseWriter).Encode(map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(wrap, r)
	})
}
