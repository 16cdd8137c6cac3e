package token

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func withPayload(payload string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	return header + "." + base64.RawURLEncoding.EncodeToString([]byte(payload)) + ".c2ln"
}

func TestValidateOutcomes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name string
		raw  string
		want Outcome
	}{
		{"valid signed token", signed(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(time.Hour).Unix()}), Valid},
		{"valid one second ahead", withPayload(`{"exp":1700000001}`), Valid},
		{"valid fractional exp", withPayload(`{"exp":1700000000.5}`), Valid},
		{"expired exactly now", withPayload(`{"exp":1700000000}`), Expired},
		{"expired in the past", signed(t, jwt.MapClaims{"exp": now.Add(-time.Second).Unix()}), Expired},
		{"empty string", "", Malformed},
		{"two segments", "a.b", Malformed},
		{"four segments", "a.b.c.d", Malformed},
		{"empty signature", withPayload(`{"exp":1800000000}`)[:len(withPayload(`{"exp":1800000000}`))-4], Malformed},
		{"not base64 payload", "not.a.token", Malformed},
		{"payload not json", withPayload(`exp=1800000000`), Malformed},
		{"payload is array", withPayload(`[1800000000]`), Malformed},
		{"missing exp", withPayload(`{"sub":"u1"}`), Malformed},
		{"exp as string", withPayload(`{"exp":"1800000000"}`), Malformed},
		{"exp null", withPayload(`{"exp":null}`), Malformed},
		{"numeric sub is ignored", withPayload(`{"sub":42,"exp":4102444800}`), Valid},
		{"object sub is ignored", withPayload(`{"sub":{"id":1},"exp":4102444800}`), Valid},
		{"huge exp is far future", withPayload(`{"exp":1e308}`), Valid},
		{"exp beyond float64", withPayload(`{"exp":1e400}`), Valid},
		{"huge negative exp", withPayload(`{"exp":-1e308}`), Expired},
		{"exp as bool", withPayload(`{"exp":true}`), Malformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.raw, now)
			if got.Outcome != tt.want {
				t.Fatalf("Validate(%q) = %s (err %v), want %s", tt.raw, got.Outcome, got.Err, tt.want)
			}
			if tt.want == Malformed && got.Err == nil {
				t.Fatalf("malformed result without error")
			}
		})
	}
}

func TestValidatePaddedPayload(t *testing.T) {
	header := base64.URLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload := base64.URLEncoding.EncodeToString([]byte(`{"exp":1800000000}`))
	raw := header + "." + payload + ".x"

	if got := Validate(raw, time.Unix(1_700_000_000, 0)); got.Outcome != Valid {
		t.Fatalf("padded payload: got %s (%v)", got.Outcome, got.Err)
	}
}

func TestValidateExpiresAt(t *testing.T) {
	res := Validate(withPayload(`{"exp":1800000000,"sub":"42"}`), time.Unix(1_700_000_000, 0))
	if res.Outcome != Valid {
		t.Fatalf("got %s", res.Outcome)
	}
	if !res.ExpiresAt.Equal(time.Unix(1_800_000_000, 0)) {
		t.Fatalf("ExpiresAt = %v", res.ExpiresAt)
	}
	if res.Claims.Subject != "42" {
		t.Fatalf("Subject = %q", res.Claims.Subject)
	}
}

func TestNonStringSubjectIsDropped(t *testing.T) {
	res := Validate(withPayload(`{"sub":42,"exp":1800000000}`), time.Unix(1_700_000_000, 0))
	if res.Outcome != Valid || res.Err != nil {
		t.Fatalf("got %s (%v)", res.Outcome, res.Err)
	}
	if res.Claims.Subject != "" {
		t.Fatalf("Subject = %q, want empty", res.Claims.Subject)
	}
}

func TestFarFutureExpClamped(t *testing.T) {
	res := Validate(withPayload(`{"exp":1e300}`), time.Unix(1_700_000_000, 0))
	if res.Outcome != Valid {
		t.Fatalf("got %s (%v)", res.Outcome, res.Err)
	}
	if res.ExpiresAt.UnixMilli() != math.MaxInt64 {
		t.Fatalf("ExpiresAt ms = %d", res.ExpiresAt.UnixMilli())
	}
}

func TestParseErrors(t *testing.T) {
	if _, _, err := Parse(""); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty: %v", err)
	}
	if _, _, err := Parse("a.b"); !errors.Is(err, ErrSegments) {
		t.Fatalf("segments: %v", err)
	}
	if _, _, err := Parse(withPayload(`{}`)); !errors.Is(err, ErrMissingExp) {
		t.Fatalf("missing exp: %v", err)
	}
}

func TestValidatorUsesClock(t *testing.T) {
	raw := withPayload(`{"exp":1000}`)
	v := &Validator{Now: func() time.Time { return time.Unix(999, 0) }}
	if got := v.Validate(raw).Outcome; got != Valid {
		t.Fatalf("before exp: %s", got)
	}
	v.Now = func() time.Time { return time.Unix(1000, 0) }
	if got := v.Validate(raw).Outcome; got != Expired {
		t.Fatalf("at exp: %s", got)
	}
}
