package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) CreateBackup(w http.ResponseWriter, _ *http.Request) {
	snap, err := h.deps.Backups.Create()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"id":        snap.ID,
		"path":      snap.Path,
		"timestamp": snap.Timestamp,
	})
}

func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	meta, err := h.deps.Backups.Restore(chi.URLParam(r, "backupId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": meta.Timestamp,
	})
}

func (h *Handler) ListBackups(w http.ResponseWriter, _ *http.Request) {
	list, err := h.deps.Backups.List()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}
