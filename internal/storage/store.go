package storage

import (
	"context"
)

// Ключи хранилища учётных данных (совпадают с ключами localStorage во фронтенде).
const (
	TokenKey            = "authToken"
	ProfileKey          = "careerai_user"
	LanguageKey         = "careerai_language"
	PushSubscriptionKey = "careerai_push"
)

// Change — уведомление об изменении ключа в области (scope) клиента.
type Change struct {
	Scope   string `json:"scope"`
	Key     string `json:"key"`
	Removed bool   `json:"removed"`
}

// Backend — общее key-value хранилище для всех клиентов; scope играет роль origin браузера.
// Get возвращает "" без ошибки, если ключа нет. Remove идемпотентен.
// Реализации: memory.Client, redis.Client, repository.CredentialRepository.
type Backend interface {
	Get(ctx context.Context, scope, key string) (string, error)
	Set(ctx context.Context, scope, key, value string) error
	Remove(ctx context.Context, scope, key string) error
	// Subscribe отдаёт изменения всех областей до отмены ctx.
	Subscribe(ctx context.Context) (<-chan Change, error)
	Close() error
}

// CredentialStore — хранилище одной области. Его получают валидатор сессии, контроллер и гард.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

type scoped struct {
	backend Backend
	scope   string
}

// Scope возвращает CredentialStore, привязанный к области scope.
func Scope(b Backend, scope string) CredentialStore {
	return &scoped{backend: b, scope: scope}
}

func (s *scoped) Get(ctx context.Context, key string) (string, error) {
	return s.backend.Get(ctx, s.scope, key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.backend.Set(ctx, s.scope, key, value)
}

func (s *scoped) Remove(ctx context.Context, key string) error {
	return s.backend.Remove(ctx, s.scope, key)
}
