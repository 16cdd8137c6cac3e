package startup

import (
	"context"
	"time"

	"github.com/careerpath/internal/logger"
	redisstorage "github.com/careerpath/internal/storage/redis"
)

func ConnectRedisWithRetry(redisURL string, maxWait time.Duration) *redisstorage.Client {
	var client *redisstorage.Client
	withRetry("credentials redis connect", maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	logger.Info("redis connected")
	return client
}
