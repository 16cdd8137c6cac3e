// Package apiclient — тонкий клиент внешнего API карьерного сервиса.
// Сохранённый токен уходит как Bearer; ответ 401 сбрасывает учётные данные области.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/session"
)

const (
	DefaultBaseURL = "http://localhost:8000/api"
	// DefaultTimeout рассчитан на медленные операции бэкенда (разбор резюме, генерация роадмапа).
	DefaultTimeout = 90 * time.Second
	maxBodySize    = 8 << 20
)

var ErrUnauthorized = errors.New("backend: unauthorized")

// APIError — ответ бэкенда с кодом >= 400 (кроме 401). Message нормализован из detail.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %d: %s", e.Status, e.Message)
}

// Session — то, что клиенту нужно от контроллера сессии.
type Session interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context, reason session.Reason)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Call — запрос от имени области: sess может быть nil (вход, регистрация).
// RawBody уходит как есть с ContentType (multipart загрузка резюме); иначе Body кодируется в JSON.
type Call struct {
	Method      string
	Path        string
	Body        any
	RawBody     io.Reader
	ContentType string
	Language    string
	Session     Session
}

// Do выполняет вызов и возвращает тело ответа как есть.
// На 401 при наличии сессии удаляет токен и профиль и возвращает ErrUnauthorized.
func (c *Client) Do(ctx context.Context, call Call) (json.RawMessage, error) {
	defer logger.DeferLogDuration("backend "+call.Method+" "+call.Path, time.Now())()

	body, contentType := call.RawBody, call.ContentType
	if body == nil && call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("apiclient.Do marshal: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, c.baseURL+call.Path, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient.Do: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if call.Language != "" {
		req.Header.Set("Accept-Language", call.Language)
	}
	if call.Session != nil {
		tok, err := call.Session.Token(ctx)
		if err != nil {
			logger.Errorf("apiclient: read token: %v", err)
		} else if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient.Do %s %s: %w", call.Method, call.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("apiclient.Do read: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if call.Session != nil {
			call.Session.Invalidate(ctx, session.ReasonUnauthorized)
		}
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Message: DetailMessage(data, resp.StatusCode)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("apiclient.Do %s: response is not json", call.Path)
	}
	return json.RawMessage(data), nil
}

func (c *Client) Get(ctx context.Context, sess Session, lang, path string) (json.RawMessage, error) {
	return c.Do(ctx, Call{Method: http.MethodGet, Path: path, Language: lang, Session: sess})
}

func (c *Client) Post(ctx context.Context, sess Session, lang, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, Call{Method: http.MethodPost, Path: path, Body: body, Language: lang, Session: sess})
}

// DetailMessage сводит поле detail ответа об ошибке к одной строке.
// detail бывает строкой, списком объектов {msg} или объектом {msg}.
func DetailMessage(body []byte, status int) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var s string
		if json.Unmarshal(envelope.Detail, &s) == nil && s != "" {
			return s
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(envelope.Detail, &list) == nil {
			msgs := make([]string, 0, len(list))
			for _, item := range list {
				if item.Msg != "" {
					msgs = append(msgs, item.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, ", ")
			}
		}
		var one struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(envelope.Detail, &one) == nil && one.Msg != "" {
			return one.Msg
		}
	}
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return "request failed"
}
