package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/storage"
)

// Область клиента живёт 30 дней после последней записи, как localStorage неактивного браузера
// с очищенными данными сайта.
const (
	ScopeTTL      = 30 * 24 * time.Hour
	keyPrefix     = "cred:"
	ChangeChannel = "cred:changes"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewFromClient оборачивает готовый клиент (тесты, общий пул).
func NewFromClient(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func scopeKey(scope string) string {
	return keyPrefix + scope
}

// Get читает поле key из хеша cred:{scope}. Нет ключа — пустая строка.
func (c *Client) Get(ctx context.Context, scope, key string) (string, error) {
	val, err := c.cli.HGet(ctx, scopeKey(scope), key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis.Get: %w", err)
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, scope, key, value string) error {
	k := scopeKey(scope)
	pipe := c.cli.TxPipeline()
	pipe.HSet(ctx, k, key, value)
	pipe.Expire(ctx, k, ScopeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis.Set: %w", err)
	}
	c.publish(ctx, storage.Change{Scope: scope, Key: key})
	return nil
}

// Remove идемпотентен: HDEL несуществующего поля возвращает 0, событие не публикуется.
func (c *Client) Remove(ctx context.Context, scope, key string) error {
	n, err := c.cli.HDel(ctx, scopeKey(scope), key).Result()
	if err != nil {
		return fmt.Errorf("redis.Remove: %w", err)
	}
	if n > 0 {
		c.publish(ctx, storage.Change{Scope: scope, Key: key, Removed: true})
	}
	return nil
}

func (c *Client) publish(ctx context.Context, ch storage.Change) {
	data, err := json.Marshal(ch)
	if err != nil {
		return
	}
	if err := c.cli.Publish(ctx, ChangeChannel, data).Err(); err != nil {
		logger.Errorf("redis publish change key=%s: %v", ch.Key, err)
	}
}

// Subscribe слушает канал cred:changes: изменения из других экземпляров сервиса тоже доходят.
func (c *Client) Subscribe(ctx context.Context) (<-chan storage.Change, error) {
	ps := c.cli.Subscribe(ctx, ChangeChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	out := make(chan storage.Change, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ch storage.Change
				if err := json.Unmarshal([]byte(m.Payload), &ch); err != nil {
					logger.Errorf("redis change payload: %v", err)
					continue
				}
				select {
				case out <- ch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// FlushScope удаляет все ключи области (очистка данных сайта).
func (c *Client) FlushScope(ctx context.Context, scope string) error {
	return c.cli.Del(ctx, scopeKey(scope)).Err()
}
