// Package handlers implements the HTTP handlers: the Telegram webhook and
// the admin API over learned utterances, pipelines and the inventory.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/agentoven/larder/internal/dispatch"
	"github.com/agentoven/larder/internal/engrams"
	"github.com/agentoven/larder/internal/errs"
	"github.com/agentoven/larder/internal/inventory"
	"github.com/agentoven/larder/internal/pipelines"
	"github.com/agentoven/larder/internal/store"
	"github.com/agentoven/larder/internal/telegram"
	"github.com/agentoven/larder/pkg/models"
)

// MessageSink accepts decoded chat messages for detached processing.
type MessageSink interface {
	Dispatch(msg telegram.Message)
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Messages   MessageSink
	Inventory  *inventory.Service
	Dispatcher *dispatch.Dispatcher
	Engrams    *engrams.Store
	Pipelines  *pipelines.Store
	Utterances store.UtteranceStore
}

// ── Telegram ─────────────────────────────────────────────────

// TelegramWebhook handles POST /telegram/webhook. It always answers 200 so
// Telegram does not redeliver; the message is processed after the response.
func (h *Handlers) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	msg, ok, err := telegram.DecodeUpdate(r.Body)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Ignoring malformed Telegram update")
	case !ok:
		log.Debug().Msg("Ignoring non-text Telegram update")
	default:
		h.Messages.Dispatch(msg)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ── Learned utterances ───────────────────────────────────────

// ListEngrams handles GET /api/v1/engrams
func (h *Handlers) ListEngrams(w http.ResponseWriter, r *http.Request) {
	list, err := h.Utterances.ListUtterances(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.LearnedUtterance{}
	}
	respondJSON(w, http.StatusOK, list)
}

// LearnEngram handles POST /api/v1/engrams with the same contract as the
// learn_utterance tool.
func (h *Handlers) LearnEngram(w http.ResponseWriter, r *http.Request) {
	var req engrams.LearnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.Engrams.Learn(r.Context(), req, h.Pipelines)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

// SweepEngrams handles POST /api/v1/engrams/sweep
func (h *Handlers) SweepEngrams(w http.ResponseWriter, r *http.Request) {
	n, err := h.Engrams.Sweep(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// ── Pipelines ────────────────────────────────────────────────

// ListPipelines handles GET /api/v1/pipelines
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	list, err := h.Pipelines.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []models.Pipeline{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GetPipeline handles GET /api/v1/pipelines/{name}
func (h *Handlers) GetPipeline(w http.ResponseWriter, r *http.Request) {
	p, err := h.Pipelines.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ── Inventory ────────────────────────────────────────────────

// ListItems handles GET /api/v1/items
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Inventory.All(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	respondJSON(w, http.StatusOK, items)
}

type resolveRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type resolveResponse struct {
	Resolved bool   `json:"resolved"`
	Path     string `json:"path,omitempty"`
	Reply    string `json:"reply,omitempty"`
}

// Resolve handles POST /api/v1/resolve. It runs text through the fast path
// and the learned utterances exactly as a chat message would, including any
// mutation, but never calls the reasoning service.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	res, ok := h.Dispatcher.Resolve(r.Context(), req.ChatID, req.Text)
	respondJSON(w, http.StatusOK, resolveResponse{Resolved: ok, Path: res.Path, Reply: res.Reply})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps the error taxonomy onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch e.Kind {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindAmbiguity:
		status = http.StatusConflict
	case errs.KindAuthorization:
		status = http.StatusForbidden
	case errs.KindUpstream:
		status = http.StatusBadGateway
	}
	respondJSON(w, status, map[string]any{
		"error":      e.Reply(),
		"kind":       e.Kind,
		"candidates": e.Candidates,
	})
}
