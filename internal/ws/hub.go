package ws

import (
	"context"
	"sync"
	"time"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/storage"
)

// Hub держит смонтированные экземпляры приложения по областям и рассылает им изменения
// хранилища: выход или истечение сессии в одной вкладке видят все вкладки браузера.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	sessions   *session.Manager
	loginPath  string
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(sessions *session.Manager, maxConns int, loginPath string) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	if loginPath == "" {
		loginPath = "/login"
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		sessions:   sessions,
		loginPath:  loginPath,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

// Run обслуживает регистрацию и ленту изменений хранилища до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	changes, err := h.sessions.Backend().Subscribe(ctx)
	if err != nil {
		logger.Errorf("ws subscribe credential changes: %v (cross-tab events disabled)", err)
	}
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case ch, ok := <-changes:
			if !ok {
				if ctx.Err() == nil {
					logger.Errorf("ws credential change feed closed")
				}
				changes = nil
				continue
			}
			h.handleChange(ch)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.session.Stop()
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

// addClient — монтирование: контроллер проверяет токен сразу и запускает таймер.
func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting scope=%s", h.maxConns, session.MaskScope(c.scope))
		c.Close()
		return
	}
	if _, ok := h.clients[c.scope]; !ok {
		h.clients[c.scope] = make(map[*Client]struct{})
	}
	h.clients[c.scope][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.session.Start(ctx)
	h.sendState(ctx, c)
}

// removeClient — размонтирование: таймер контроллера останавливается ровно один раз.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.scope]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.scope)
	}
	h.mu.Unlock()

	c.session.Stop()
	c.Close()
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventCheck:
		h.sendState(ctx, c)
	case EventSignOut:
		c.session.SignOut(ctx)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) sendState(ctx context.Context, c *Client) {
	state := SessionStatePayload{}
	if s, ok := c.session.Current(ctx); ok {
		user := s.User
		exp := s.ExpiresAt.UTC()
		state = SessionStatePayload{LoggedIn: true, User: &user, ExpiresAt: &exp}
	}
	h.sendToClient(c, OutgoingMessage{Type: EventSessionState, Payload: state})
}

func (h *Hub) handleChange(ch storage.Change) {
	switch ch.Key {
	case storage.TokenKey, storage.ProfileKey, storage.LanguageKey:
	default:
		return
	}
	if ch.Removed && ch.Key == storage.TokenKey {
		h.sendToScope(ch.Scope, OutgoingMessage{
			Type:    EventSessionCleared,
			Payload: SessionClearedPayload{Redirect: h.loginPath},
		})
		return
	}
	h.sendToScope(ch.Scope, OutgoingMessage{
		Type:    EventCredentialsChanged,
		Payload: ChangePayload{Key: ch.Key, Removed: ch.Removed},
	})
}

func (h *Hub) sendToScope(scope string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[scope]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

// ClientsInScope — число смонтированных экземпляров области.
func (h *Hub) ClientsInScope(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[scope])
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		logger.Errorf("ws send buffer full, closing slow client scope=%s", session.MaskScope(c.scope))
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
