package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/model"
	"github.com/careerpath/internal/storage"
)

const maxRequestBody = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

var errBadBody = errors.New("invalid request body")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return errBadBody
	}
	return nil
}

// language — сохранённый язык области или язык по умолчанию.
func language(ctx context.Context, store storage.CredentialStore) string {
	raw, err := store.Get(ctx, storage.LanguageKey)
	if err != nil {
		logger.Errorf("read language: %v", err)
		return model.DefaultLanguage
	}
	if code, ok := model.NormalizeLanguage(raw); ok {
		return code
	}
	return model.DefaultLanguage
}
