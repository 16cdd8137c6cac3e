package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	rateLimitWindow   = time.Minute
	rateLimitMaxIP    = 30
	rateLimitMaxScope = 10
)

type rateLimiter struct {
	mu        sync.Mutex
	times     map[string][]time.Time
	max       int
	window    time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window, now: time.Now}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cutoff := now.Add(-r.window)
	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(cutoff)
		r.lastSweep = now
	}
	slice := prune(r.times[key], cutoff)
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

// sweep удаляет ключи без попыток в окне, иначе карта растёт с каждым новым адресом.
func (r *rateLimiter) sweep(cutoff time.Time) {
	for key, slice := range r.times {
		if slice = prune(slice, cutoff); len(slice) == 0 {
			delete(r.times, key)
		} else {
			r.times[key] = slice
		}
	}
}

func prune(slice []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	return slice[:i]
}

// clientIP — адрес без порта: у прямого клиента каждое TCP-соединение приходит с новым портом.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// RateLimitAuth ограничивает попытки входа/регистрации по IP и по области клиента. 429 при превышении.
func RateLimitAuth() func(http.Handler) http.Handler {
	byIP := newRateLimiter(rateLimitMaxIP, rateLimitWindow)
	byScope := newRateLimiter(rateLimitMaxScope, rateLimitWindow)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// RealIP переписывает RemoteAddr только при X-Real-IP / X-Forwarded-For
			if !byIP.allow(clientIP(r.RemoteAddr)) {
				writeTooMany(w)
				return
			}
			if scope := GetScope(r.Context()); scope != "" {
				if !byScope.allow("s:" + scope) {
					writeTooMany(w)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooMany(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"too many requests"}`))
}
