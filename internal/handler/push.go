package handler

import (
	"errors"
	"net/http"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/push"
)

// PushHandler сохраняет подписку браузера на уведомление об окончании сессии.
type PushHandler struct {
	notifier *push.Notifier
}

func NewPushHandler(notifier *push.Notifier) *PushHandler {
	return &PushHandler{notifier: notifier}
}

// SubscribeRequest — тело от фронта (subscription из PushManager.getSubscription()).
type SubscribeRequest struct {
	Subscription push.Subscription `json:"subscription"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.notifier.Subscribe(r.Context(), middleware.GetScope(r.Context()), req.Subscription)
	if errors.Is(err, push.ErrInvalidSubscription) {
		writeError(w, http.StatusBadRequest, "subscription.endpoint and subscription.keys required")
		return
	}
	if err != nil {
		logger.Errorf("push subscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to subscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.notifier.Unsubscribe(r.Context(), middleware.GetScope(r.Context())); err != nil {
		logger.Errorf("push unsubscribe: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to unsubscribe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
