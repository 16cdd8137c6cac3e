package session

import (
	"strings"

	"github.com/careerpath/internal/storage"
)

// Manager создаёт контроллеры для областей общего хранилища с одинаковыми опциями.
type Manager struct {
	backend storage.Backend
	opts    []Option
}

func NewManager(backend storage.Backend, opts ...Option) *Manager {
	return &Manager{backend: backend, opts: opts}
}

// For возвращает неактивный контроллер области. Для HTTP-запроса его не запускают,
// для смонтированного экземпляра приложения (ws) — Start/Stop.
func (m *Manager) For(scope string) *Controller {
	return NewController(scope, storage.Scope(m.backend, scope), m.opts...)
}

func (m *Manager) Backend() storage.Backend { return m.backend }

// MaskScope маскирует идентификатор области в логах.
func MaskScope(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
