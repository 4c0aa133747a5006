package handler

import (
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

// Status reports config sizes, uptime and memory use of the process.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"whitelistedNumbers": h.deps.Whitelist.Len(),
		"activeWebhooks":     h.deps.Webhooks.Len(),
		"uptime":             time.Since(h.started).Seconds(),
		"memory": map[string]uint64{
			"sys":       mem.Sys,
			"heapTotal": mem.HeapSys,
			"heapUsed":  mem.HeapAlloc,
			"numGC":     uint64(mem.NumGC),
		},
	})
}

// SessionStatus proxies the gateway's session state. An unreachable gateway is
// reported as DISCONNECTED.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Gateway.Status(r.Context())
	if err != nil {
		h.log.Warn("gateway status unavailable", zap.Error(err))
		status = model.SessionStatus{
			Status: "DISCONNECTED",
			Info:   map[string]any{"error": err.Error()},
		}
	}
	h.writeJSON(w, http.StatusOK, status)
}
