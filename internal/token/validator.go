// Package token разбирает компактный токен доступа (header.payload.signature) на стороне клиента.
// Подпись не проверяется: её проверяет бэкенд. Здесь читается только claim exp,
// чтобы вовремя убрать просроченные учётные данные.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Outcome — результат проверки токена.
type Outcome int

const (
	Malformed Outcome = iota
	Expired
	Valid
)

// Absent — отсутствующий токен. Для гардов неотличим от Malformed.
const Absent = Malformed

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return "malformed"
	}
}

var (
	ErrEmpty      = errors.New("token is empty")
	ErrSegments   = errors.New("token must have 3 non-empty segments")
	ErrPayload    = errors.New("token payload is not valid base64url json")
	ErrMissingExp = errors.New("token payload has no numeric exp")
)

// Claims — схема полезной нагрузки. exp обязателен; sub берётся, только если это строка.
type Claims struct {
	Exp     float64 `json:"exp"`
	Subject string  `json:"sub,omitempty"`
}

type rawClaims struct {
	Exp     json.RawMessage `json:"exp"`
	Subject json.RawMessage `json:"sub"`
}

// Result — исход проверки. ExpiresAt заполнен для Valid и Expired, Err — для Malformed.
type Result struct {
	Outcome   Outcome
	Claims    Claims
	ExpiresAt time.Time
	Err       error
}

// segmentParser только декодирует сегменты; проверки подписи и claims не используются.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Parse разбирает токен и возвращает claims вместе с моментом истечения в миллисекундах.
func Parse(raw string) (Claims, int64, error) {
	if raw == "" {
		return Claims{}, 0, ErrEmpty
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Claims{}, 0, fmt.Errorf("%w: got %d", ErrSegments, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Claims{}, 0, ErrSegments
		}
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return Claims{}, 0, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	var rc rawClaims
	if err := json.Unmarshal(payload, &rc); err != nil {
		return Claims{}, 0, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	// строка "123" или null в exp — не число
	if len(rc.Exp) == 0 || rc.Exp[0] == '"' || string(rc.Exp) == "null" {
		return Claims{}, 0, ErrMissingExp
	}
	exp, err := parseExp(rc.Exp)
	if err != nil {
		return Claims{}, 0, err
	}
	c := Claims{Exp: exp}
	// sub другого типа не делает токен битым
	if len(rc.Subject) > 0 && rc.Subject[0] == '"' {
		_ = json.Unmarshal(rc.Subject, &c.Subject)
	}
	return c, expMillis(exp), nil
}

// parseExp принимает любое JSON-число. Переполнение float64 даёт ±Inf, а не ошибку.
func parseExp(raw json.RawMessage) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingExp, err)
	}
	exp, err := strconv.ParseFloat(n.String(), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%w: %v", ErrMissingExp, err)
	}
	return exp, nil
}

// expMillis округляет exp*1000 вверх и прижимает к границам int64.
func expMillis(exp float64) int64 {
	ms := math.Ceil(exp * 1000)
	switch {
	case ms >= math.MaxInt64:
		return math.MaxInt64
	case ms <= math.MinInt64:
		return math.MinInt64
	}
	return int64(ms)
}

// Validate — чистая функция: ничего не пишет в хранилище, решение за вызывающим.
// Токен просрочен, если now_ms >= exp*1000.
func Validate(raw string, now time.Time) Result {
	claims, expMs, err := Parse(raw)
	if err != nil {
		return Result{Outcome: Malformed, Err: err}
	}
	res := Result{Claims: claims, ExpiresAt: time.UnixMilli(expMs)}
	if now.UnixMilli() >= expMs {
		res.Outcome = Expired
		return res
	}
	res.Outcome = Valid
	return res
}

// Validator связывает Validate с источником времени.
type Validator struct {
	Now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

func (v *Validator) Validate(raw string) Result {
	now := time.Now
	if v != nil && v.Now != nil {
		now = v.Now
	}
	return Validate(raw, now())
}
