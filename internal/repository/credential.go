package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/storage"
	"github.com/careerpath/migrations"
)

// NotifyChannel — канал LISTEN/NOTIFY для изменений учётных данных.
const NotifyChannel = "credential_changes"

// CredentialRepository — хранилище учётных данных в Postgres. Реализует storage.Backend.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Migrate применяет встроенные миграции по порядку имён файлов.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return fmt.Errorf("migrations glob: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	logger.Infof("migrations applied: %d", len(names))
	return nil
}

func (r *CredentialRepository) Get(ctx context.Context, scope, key string) (string, error) {
	defer logger.DeferLogDuration("credential.Get", time.Now())()
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT value FROM credentials WHERE scope = $1 AND key = $2`, scope, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("credentialRepo.Get: %w", err)
	}
	return value, nil
}

// Set перезаписывает значение и в той же транзакции шлёт NOTIFY.
func (r *CredentialRepository) Set(ctx context.Context, scope, key, value string) error {
	defer logger.DeferLogDuration("credential.Set", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("credentialRepo.Set begin: %w", err)
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx,
		`INSERT INTO credentials (scope, key, value, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		scope, key, value,
	)
	if err != nil {
		return fmt.Errorf("credentialRepo.Set: %w", err)
	}
	if err := notify(ctx, tx, storage.Change{Scope: scope, Key: key}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Remove идемпотентен; NOTIFY только если строка была удалена.
func (r *CredentialRepository) Remove(ctx context.Context, scope, key string) error {
	defer logger.DeferLogDuration("credential.Remove", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("credentialRepo.Remove begin: %w", err)
	}
	defer tx.Rollback(ctx)
	tag, err := tx.Exec(ctx, `DELETE FROM credentials WHERE scope = $1 AND key = $2`, scope, key)
	if err != nil {
		return fmt.Errorf("credentialRepo.Remove: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if err := notify(ctx, tx, storage.Change{Scope: scope, Key: key, Removed: true}); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func notify(ctx context.Context, tx pgx.Tx, ch storage.Change) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
		return fmt.Errorf("credentialRepo.notify: %w", err)
	}
	return nil
}

// Subscribe держит отдельное соединение пула с LISTEN до отмены ctx.
func (r *CredentialRepository) Subscribe(ctx context.Context) (<-chan storage.Change, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("credentialRepo.Subscribe acquire: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("credentialRepo.Subscribe listen: %w", err)
	}
	out := make(chan storage.Change, 64)
	go func() {
		defer close(out)
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Errorf("credential listen: %v", err)
				}
				return
			}
			var ch storage.Change
			if err := json.Unmarshal([]byte(n.Payload), &ch); err != nil {
				logger.Errorf("credential notify payload: %v", err)
				continue
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// PurgeIdle удаляет области, не менявшиеся дольше maxAge.
func (r *CredentialRepository) PurgeIdle(ctx context.Context, maxAge time.Duration) (int64, error) {
	defer logger.DeferLogDuration("credential.PurgeIdle", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM credentials WHERE scope IN (
			SELECT scope FROM credentials GROUP BY scope HAVING MAX(updated_at) < $1
		)`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("credentialRepo.PurgeIdle: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *CredentialRepository) Close() error {
	r.pool.Close()
	return nil
}
