package model

import "time"

// Session — токен и профиль одной области клиента. Присутствует, только если есть оба.
type Session struct {
	Token     string    `json:"-"`
	User      Profile   `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}
