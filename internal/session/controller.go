// Package session владеет жизненным циклом учётных данных одной области клиента:
// проверка при монтировании, периодическая перепроверка, вход, выход и сброс по 401.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/model"
	"github.com/careerpath/internal/storage"
	"github.com/careerpath/internal/token"
)

// DefaultInterval — период перепроверки токена, пока приложение открыто.
const DefaultInterval = 5 * time.Minute

var ErrEmptyToken = errors.New("session: empty token")

// State — состояние контроллера: Idle (таймера нет) или Active (таймер запущен).
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Reason — причина удаления учётных данных.
type Reason string

const (
	ReasonExpired      Reason = "expired"
	ReasonMalformed    Reason = "malformed"
	ReasonSignedOut    Reason = "signed_out"
	ReasonUnauthorized Reason = "unauthorized"
)

// Ticker — источник тиков таймера перепроверки.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// ClearedFunc вызывается после каждого сброса, когда в хранилище что-то было.
type ClearedFunc func(ctx context.Context, scope string, reason Reason)

type Option func(*Controller)

func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.validator = &token.Validator{Now: now} }
}

func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(c *Controller) { c.newTicker = newTicker }
}

func OnCleared(fn ClearedFunc) Option {
	return func(c *Controller) { c.onCleared = fn }
}

// Controller — контроллер сессии одной области. Все изменения хранилища сериализованы mu.
type Controller struct {
	scope     string
	store     storage.CredentialStore
	validator *token.Validator
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	onCleared ClearedFunc

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(scope string, store storage.CredentialStore, opts ...Option) *Controller {
	c := &Controller{
		scope:     scope,
		store:     store,
		validator: token.NewValidator(),
		interval:  DefaultInterval,
		newTicker: newTimeTicker,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) Scope() string { return c.scope }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start проверяет токен сразу и запускает таймер. Повторный Start на Active ничего не делает.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.state == Active {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.Check(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Active {
		return
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = Active
	go c.loop(loopCtx, c.newTicker(c.interval), c.done)
}

func (c *Controller) loop(ctx context.Context, t Ticker, done chan struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			c.Check(ctx)
		}
	}
}

// Stop останавливает таймер и дожидается завершения текущей проверки. На Idle — no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.state = Idle
	c.mu.Unlock()

	cancel()
	<-done
}

// Check перепроверяет сохранённый токен и при Expired/Malformed удаляет токен и профиль.
// Ошибки чтения считаются Malformed и наружу не выходят.
func (c *Controller) Check(ctx context.Context) token.Outcome {
	res, _, ok := c.check(ctx)
	if !ok {
		return token.Malformed
	}
	return res.Outcome
}

// check возвращает результат проверки и сырой токен. ok=false, если чтение прервано отменой ctx.
func (c *Controller) check(ctx context.Context) (token.Result, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.store.Get(ctx, storage.TokenKey)
	if err != nil {
		if ctx.Err() != nil {
			return token.Result{Outcome: token.Malformed, Err: err}, "", false
		}
		logger.Warnf("session check scope=%s: read token: %v", MaskScope(c.scope), err)
		c.wipeLocked(ctx, ReasonMalformed)
		return token.Result{Outcome: token.Malformed, Err: err}, "", true
	}
	if raw == "" {
		return token.Result{Outcome: token.Absent, Err: token.ErrEmpty}, "", true
	}
	res := c.validator.Validate(raw)
	switch res.Outcome {
	case token.Valid:
	case token.Expired:
		logger.Warnf("session scope=%s: token expired at %s", MaskScope(c.scope), res.ExpiresAt.UTC().Format(time.RFC3339))
		c.wipeLocked(ctx, ReasonExpired)
	default:
		logger.Warnf("session scope=%s: malformed token: %v", MaskScope(c.scope), res.Err)
		c.wipeLocked(ctx, ReasonMalformed)
	}
	return res, raw, true
}

// Current заново выводит сессию из хранилища: та же проверка, затем профиль.
// Нечитаемый профиль удаляет оба ключа. Без токена или профиля сессии нет.
func (c *Controller) Current(ctx context.Context) (*model.Session, bool) {
	res, raw, ok := c.check(ctx)
	if !ok || res.Outcome != token.Valid {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rawProfile, err := c.store.Get(ctx, storage.ProfileKey)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warnf("session scope=%s: read profile: %v", MaskScope(c.scope), err)
			c.wipeLocked(ctx, ReasonMalformed)
		}
		return nil, false
	}
	if rawProfile == "" {
		return nil, false
	}
	p, err := model.ParseProfile(rawProfile)
	if err != nil {
		logger.Warnf("session scope=%s: bad profile: %v", MaskScope(c.scope), err)
		c.wipeLocked(ctx, ReasonMalformed)
		return nil, false
	}
	return &model.Session{Token: raw, User: *p, ExpiresAt: res.ExpiresAt}, true
}

// Token возвращает сохранённый токен без проверки (для заголовка Authorization).
func (c *Controller) Token(ctx context.Context) (string, error) {
	return c.store.Get(ctx, storage.TokenKey)
}

// SignIn записывает профиль, затем токен. Сбой между записями оставляет профиль без токена,
// что читается как отсутствие сессии.
func (c *Controller) SignIn(ctx context.Context, rawToken string, p model.Profile) error {
	if rawToken == "" {
		return ErrEmptyToken
	}
	encoded, err := p.Encode()
	if err != nil {
		return fmt.Errorf("session.SignIn: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(ctx, storage.ProfileKey, encoded); err != nil {
		return fmt.Errorf("session.SignIn profile: %w", err)
	}
	if err := c.store.Set(ctx, storage.TokenKey, rawToken); err != nil {
		return fmt.Errorf("session.SignIn token: %w", err)
	}
	logger.Infof("session scope=%s: signed in", MaskScope(c.scope))
	return nil
}

func (c *Controller) SignOut(ctx context.Context) {
	c.Invalidate(ctx, ReasonSignedOut)
}

// Invalidate удаляет токен и профиль. Вызывается HTTP-слоем на 401 и при выходе.
func (c *Controller) Invalidate(ctx context.Context, reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wipeLocked(ctx, reason)
}

func (c *Controller) wipeLocked(ctx context.Context, reason Reason) {
	ctx = context.WithoutCancel(ctx)
	hadToken, _ := c.store.Get(ctx, storage.TokenKey)
	hadProfile, _ := c.store.Get(ctx, storage.ProfileKey)
	if err := c.store.Remove(ctx, storage.TokenKey); err != nil {
		logger.Errorf("session wipe scope=%s token: %v", MaskScope(c.scope), err)
	}
	if err := c.store.Remove(ctx, storage.ProfileKey); err != nil {
		logger.Errorf("session wipe scope=%s profile: %v", MaskScope(c.scope), err)
	}
	if hadToken == "" && hadProfile == "" {
		return
	}
	logger.Infof("session scope=%s: credentials cleared (%s)", MaskScope(c.scope), reason)
	if c.onCleared != nil {
		c.onCleared(ctx, c.scope, reason)
	}
}
