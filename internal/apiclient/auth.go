package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/careerpath/internal/model"
)

var ErrBadAuthResponse = errors.New("backend: auth response without token or user")

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse — ответ /auth/login и /auth/signup.
type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type,omitempty"`
	User        model.Profile `json:"user"`
}

func (c *Client) Login(ctx context.Context, lang string, req LoginRequest) (*AuthResponse, error) {
	return c.authCall(ctx, lang, "/auth/login", req)
}

func (c *Client) Signup(ctx context.Context, lang string, req SignupRequest) (*AuthResponse, error) {
	return c.authCall(ctx, lang, "/auth/signup", req)
}

func (c *Client) authCall(ctx context.Context, lang, path string, body any) (*AuthResponse, error) {
	data, err := c.Do(ctx, Call{Method: http.MethodPost, Path: path, Body: body, Language: lang})
	if err != nil {
		return nil, err
	}
	var out AuthResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("apiclient.auth %s: %w", path, err)
	}
	if out.AccessToken == "" || out.User.Validate() != nil {
		return nil, ErrBadAuthResponse
	}
	return &out, nil
}

// Me возвращает профиль текущего пользователя по сохранённому токену.
func (c *Client) Me(ctx context.Context, sess Session, lang string) (*model.Profile, error) {
	data, err := c.Get(ctx, sess, lang, "/auth/me")
	if err != nil {
		return nil, err
	}
	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("apiclient.Me: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
