package startup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careerpath/internal/config"
	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/repository"
	"github.com/careerpath/internal/storage"
	"github.com/careerpath/internal/storage/memory"
	redisstorage "github.com/careerpath/internal/storage/redis"
)

const (
	connectWait = 60 * time.Second
	// idleScopeAge совпадает с TTL области в Redis.
	idleScopeAge  = redisstorage.ScopeTTL
	purgeInterval = time.Hour
)

// OpenBackend открывает хранилище учётных данных по cfg.Store.Driver.
// dev=true с драйвером postgres поднимает встроенный Postgres. stop освобождает ресурсы.
func OpenBackend(ctx context.Context, cfg *config.Config, dev bool) (storage.Backend, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Info("credential store: memory")
		b := memory.New()
		return b, func() { _ = b.Close() }, nil

	case config.StoreRedis:
		logger.Info("credential store: redis")
		b := ConnectRedisWithRetry(cfg.Store.RedisURL, connectWait)
		return b, func() { _ = b.Close() }, nil

	case config.StorePostgres:
		var embedded *embeddedpostgres.EmbeddedPostgres
		if dev {
			var err error
			embedded, err = StartEmbeddedPostgres(cfg)
			if err != nil {
				return nil, nil, fmt.Errorf("embedded postgres: %w", err)
			}
		}
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			stopEmbedded(embedded)
			return nil, nil, fmt.Errorf("parse db config: %w", err)
		}
		// +1 соединение держит LISTEN
		poolCfg.MaxConns = int32(cfg.Database.MaxConnections) + 1
		pool := ConnectDBWithRetry(poolCfg, connectWait)

		migCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = repository.Migrate(migCtx, pool)
		cancel()
		if err != nil {
			pool.Close()
			stopEmbedded(embedded)
			return nil, nil, err
		}
		repo := repository.NewCredentialRepository(pool)
		purgeCtx, stopPurge := context.WithCancel(ctx)
		go purgeLoop(purgeCtx, repo)
		logger.Info("credential store: postgres")
		return repo, func() {
			stopPurge()
			_ = repo.Close()
			stopEmbedded(embedded)
		}, nil
	}
	return nil, nil, fmt.Errorf("%w: store driver %q", config.ErrInvalidConfig, cfg.Store.Driver)
}

func purgeLoop(ctx context.Context, repo *repository.CredentialRepository) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeIdle(ctx, idleScopeAge)
			if err != nil {
				logger.Errorf("purge idle scopes: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("purged %d credentials of idle scopes", n)
			}
		}
	}
}

// StartEmbeddedPostgres поднимает Postgres в ./.pgdata и переписывает cfg.Database.URL.
func StartEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5433
		user     = "careerpath"
		password = "careerpath_secret"
		database = "careerpath"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "careerpath-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}

func stopEmbedded(db *embeddedpostgres.EmbeddedPostgres) {
	if db == nil {
		return
	}
	logger.Info("stopping embedded postgres...")
	if err := db.Stop(); err != nil {
		logger.Errorf("embedded postgres stop: %v", err)
	}
}
