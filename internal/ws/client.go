package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufSize    = 32
)

// bufPool pools bytes.Buffer for JSON encoding in writePump.
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client is one mounted app instance (a browser tab).
// Lifecycle: NewClient -> Start(ctx, cancel) -> Hub.Register (session controller starts)
// -> [readPump, writePump] -> Hub.Unregister (controller stops) -> Close -> Wait.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan OutgoingMessage
	scope   string
	session *session.Controller

	// done is used as a non-blocking guard in sendToClient.
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, ctrl *session.Controller) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan OutgoingMessage, sendBufSize),
		scope:   ctrl.Scope(),
		session: ctrl,
		done:    make(chan struct{}),
	}
}

// Start launches readPump and writePump goroutines.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

func (c *Client) Wait() {
	c.wg.Wait()
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline scope=%s: %v", session.MaskScope(c.scope), err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error scope=%s: %v", session.MaskScope(c.scope), err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "invalid message"})
			continue
		}
		c.hub.HandleMessage(ctx, c, msg)
	}
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := json.NewEncoder(buf).Encode(msg); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws marshal %s: %v", msg.Type, err)
				continue
			}
			data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
