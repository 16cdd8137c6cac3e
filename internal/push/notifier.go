// Package push отправляет Web Push в service worker браузера, когда сессия области закончилась.
// Подписка хранится в хранилище учётных данных рядом с токеном.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/session"
	"github.com/careerpath/internal/storage"
)

const sendTimeout = 10 * time.Second

var ErrInvalidSubscription = errors.New("push: subscription needs https endpoint and keys")

// Subscription — подписка из PushManager.subscribe() браузера.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Subscription) Validate() error {
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ErrInvalidSubscription
	}
	if s.Keys.P256dh == "" || s.Keys.Auth == "" {
		return ErrInvalidSubscription
	}
	return nil
}

// Payload — тело уведомления; service worker по redirect уводит вкладку на вход.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type sendFunc func(ctx context.Context, msg []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Notifier — отправка уведомлений. Без VAPID-ключей подписки сохраняются, отправки нет.
type Notifier struct {
	backend   storage.Backend
	opts      *webpush.Options
	publicKey string
	loginPath string
	send      sendFunc
	wg        sync.WaitGroup
}

func NewNotifier(backend storage.Backend, keys *VAPIDKeys, subscriber, loginPath string) *Notifier {
	n := &Notifier{backend: backend, loginPath: loginPath, send: webpush.SendNotificationWithContext}
	if keys != nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		if subscriber == "" {
			subscriber = "careerpath-web"
		}
		n.publicKey = keys.PublicKey
		n.opts = &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             60,
			Urgency:         webpush.UrgencyNormal,
		}
	}
	return n
}

func (n *Notifier) Enabled() bool { return n.opts != nil }

func (n *Notifier) PublicKey() string { return n.publicKey }

// Subscribe сохраняет подписку области (одна на браузер, новая заменяет старую).
func (n *Notifier) Subscribe(ctx context.Context, scope string, sub Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	if err := n.backend.Set(ctx, scope, storage.PushSubscriptionKey, string(data)); err != nil {
		return fmt.Errorf("push.Subscribe: %w", err)
	}
	return nil
}

func (n *Notifier) Unsubscribe(ctx context.Context, scope string) error {
	return n.backend.Remove(ctx, scope, storage.PushSubscriptionKey)
}

// SessionCleared имеет сигнатуру session.ClearedFunc. Вызывается под блокировкой контроллера,
// поэтому отправка уходит в отдельную горутину.
func (n *Notifier) SessionCleared(ctx context.Context, scope string, reason session.Reason) {
	if n.opts == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := n.notify(ctx, scope, reason); err != nil {
			logger.Errorf("push scope=%s: %v", session.MaskScope(scope), err)
		}
	}()
}

// Wait дожидается отправок, начатых SessionCleared (graceful shutdown, тесты).
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) notify(ctx context.Context, scope string, reason session.Reason) error {
	raw, err := n.backend.Get(ctx, scope, storage.PushSubscriptionKey)
	if err != nil {
		return fmt.Errorf("read subscription: %w", err)
	}
	if raw == "" {
		return nil
	}
	var sub Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil || sub.Validate() != nil {
		logger.Warnf("push scope=%s: bad stored subscription, removing", session.MaskScope(scope))
		return n.backend.Remove(ctx, scope, storage.PushSubscriptionKey)
	}
	msg, err := json.Marshal(payloadFor(reason, n.loginPath))
	if err != nil {
		return err
	}
	resp, err := n.send(ctx, msg, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, n.opts)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		// подписка отозвана браузером
		return n.backend.Remove(ctx, scope, storage.PushSubscriptionKey)
	case resp.StatusCode >= 400:
		return fmt.Errorf("send: push service answered %d", resp.StatusCode)
	}
	logger.Debugf("push scope=%s: session_ended (%s) sent", session.MaskScope(scope), reason)
	return nil
}

func payloadFor(reason session.Reason, loginPath string) Payload {
	body := "Your session has ended. Please sign in again."
	switch reason {
	case session.ReasonExpired:
		body = "Your session has expired. Please sign in again."
	case session.ReasonSignedOut:
		body = "You have been signed out."
	}
	return Payload{
		Title: "CareerPath",
		Body:  body,
		Data:  map[string]string{"type": "session_ended", "reason": string(reason), "redirect": loginPath},
	}
}
