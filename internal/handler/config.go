package handler

import (
	"net/http"

	"github.com/careerpath/internal/config"
	"github.com/careerpath/internal/push"
)

// ConfigHandler отдаёт публичные параметры для фронтенда (без сессии).
type ConfigHandler struct {
	cfg      *config.Config
	notifier *push.Notifier
}

func NewConfigHandler(cfg *config.Config, notifier *push.Notifier) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, notifier: notifier}
}

// GetPushConfig возвращает публичный VAPID-ключ для подписки на пуши (если включены).
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.notifier == nil || !h.notifier.Enabled() {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          true,
		"vapid_public_key": h.notifier.PublicKey(),
	})
}

// GetSessionConfig — путь входа и период перепроверки, чтобы клиент не дублировал константы.
func (h *ConfigHandler) GetSessionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"login_path":             h.cfg.Session.LoginPath,
		"check_interval_seconds": int(h.cfg.Session.CheckInterval.Seconds()),
		"strict_guard":           h.cfg.Session.StrictGuard,
	})
}
