package handler

import (
	"net/http"

	"github.com/careerpath/internal/logger"
	"github.com/careerpath/internal/middleware"
	"github.com/careerpath/internal/model"
	"github.com/careerpath/internal/storage"
)

type LanguageHandler struct {
	backend storage.Backend
}

func NewLanguageHandler(backend storage.Backend) *LanguageHandler {
	return &LanguageHandler{backend: backend}
}

type languageBody struct {
	Language string `json:"language"`
}

func (h *LanguageHandler) Get(w http.ResponseWriter, r *http.Request) {
	store := storage.Scope(h.backend, middleware.GetScope(r.Context()))
	writeJSON(w, http.StatusOK, languageBody{Language: language(r.Context(), store)})
}

func (h *LanguageHandler) Put(w http.ResponseWriter, r *http.Request) {
	var body languageBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code, ok := model.NormalizeLanguage(body.Language)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported language")
		return
	}
	store := storage.Scope(h.backend, middleware.GetScope(r.Context()))
	if err := store.Set(r.Context(), storage.LanguageKey, code); err != nil {
		logger.Errorf("set language: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save language")
		return
	}
	writeJSON(w, http.StatusOK, languageBody{Language: code})
}
