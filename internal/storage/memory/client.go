package memory

import (
	"context"
	"sync"

	"github.com/careerpath/internal/storage"
)

const subscriberBuffer = 64

// Client — хранилище в памяти процесса (режим -dev, тесты). Данные не переживают перезапуск.
type Client struct {
	mu     sync.RWMutex
	values map[string]map[string]string
	subs   map[chan storage.Change]struct{}
	closed bool
}

func New() *Client {
	return &Client{
		values: make(map[string]map[string]string),
		subs:   make(map[chan storage.Change]struct{}),
	}
}

func (c *Client) Get(ctx context.Context, scope, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[scope][key], nil
}

func (c *Client) Set(ctx context.Context, scope, key, value string) error {
	c.mu.Lock()
	m, ok := c.values[scope]
	if !ok {
		m = make(map[string]string)
		c.values[scope] = m
	}
	m[key] = value
	c.mu.Unlock()
	c.publish(storage.Change{Scope: scope, Key: key})
	return nil
}

func (c *Client) Remove(ctx context.Context, scope, key string) error {
	c.mu.Lock()
	m, ok := c.values[scope]
	_, existed := m[key]
	if ok && existed {
		delete(m, key)
		if len(m) == 0 {
			delete(c.values, scope)
		}
	}
	c.mu.Unlock()
	if existed {
		c.publish(storage.Change{Scope: scope, Key: key, Removed: true})
	}
	return nil
}

func (c *Client) publish(ch storage.Change) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for sub := range c.subs {
		select {
		case sub <- ch:
		default:
			// медленный подписчик пропускает событие
		}
	}
}

func (c *Client) Subscribe(ctx context.Context) (<-chan storage.Change, error) {
	sub := make(chan storage.Change, subscriberBuffer)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(sub)
		return sub, nil
	}
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		if _, ok := c.subs[sub]; ok {
			delete(c.subs, sub)
			close(sub)
		}
		c.mu.Unlock()
	}()
	return sub, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for sub := range c.subs {
		delete(c.subs, sub)
		close(sub)
	}
	return nil
}
