package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/ws"
)

// WSHandler — монтирование экземпляра приложения: одно соединение на вкладку.
type WSHandler struct {
	hub            *ws.Hub
	sessions       *session.Manager
	allowedOrigins string
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS (через запятую или "*").
func NewWSHandler(hub *ws.Hub, sessions *session.Manager, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, sessions: sessions, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	scope := middleware.GetScope(r.Context())
	if scope == "" {
		writeError(w, http.StatusBadRequest, "client scope required")
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, h.sessions.For(scope))
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
