package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

func (h *Handler) ListNumbers(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"numbers": h.deps.Whitelist.List(),
	})
}

func (h *Handler) AddNumber(w http.ResponseWriter, r *http.Request) {
	var req model.AddNumberRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.deps.Whitelist.Add(req.Number)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("number whitelisted", zap.String("number", n))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"numbers": h.deps.Whitelist.List(),
	})
}

func (h *Handler) RemoveNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	removed, err := h.deps.Whitelist.Remove(number)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !removed {
		h.writeError(w, fmt.Errorf("%w: number %s", apperror.ErrNotFound, number))
		return
	}

	h.log.Info("number removed from whitelist", zap.String("number", number))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"numbers": h.deps.Whitelist.List(),
	})
}

func (h *Handler) ListWebhooks(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"webhooks": h.deps.Webhooks.List(),
	})
}

func (h *Handler) AddWebhook(w http.ResponseWriter, r *http.Request) {
	var req model.AddWebhookRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.deps.Webhooks.Add(req.URL, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info("webhook registered", zap.String("id", entry.ID), zap.String("url", entry.URL))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"webhook": entry,
	})
}

func (h *Handler) RemoveWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.deps.Webhooks.Remove(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !removed {
		h.writeError(w, fmt.Errorf("%w: webhook %s", apperror.ErrNotFound, id))
		return
	}

	h.log.Info("webhook removed", zap.String("id", id))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"webhooks": h.deps.Webhooks.List(),
	})
}
