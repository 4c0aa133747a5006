// Package handler contains the HTTP handlers of the relay API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/backup"
	"github.com/diegocamara89/meu-venom-bot/internal/metrics"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

// PhoneValidator accepts numbers written with digits and the usual separators,
// e.g. +55 (11) 99999-9999.
var PhoneValidator = func(fl validator.FieldLevel) bool {
	pattern := `^\+?[\d\s().-]*\d[\d\s().-]*$`
	matched, _ := regexp.MatchString(pattern, fl.Field().String())
	return matched
}

// NewValidator returns a validator with the relay's custom tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", PhoneValidator)
	return v
}

// Whitelist is the sender allow-list managed under /api/whitelist.
type Whitelist interface {
	Add(raw string) (string, error)
	Remove(raw string) (bool, error)
	IsAuthorized(raw string) bool
	List() []string
	Len() int
}

// Registry is the webhook list managed under /api/webhooks.
type Registry interface {
	Add(url, description string) (model.WebhookEntry, error)
	Remove(id string) (bool, error)
	List() []model.WebhookEntry
	Len() int
}

// Backups creates and restores config snapshots.
type Backups interface {
	Create() (backup.Snapshot, error)
	Restore(id string) (backup.Metadata, error)
	List() ([]backup.Snapshot, error)
}

// Gateway is the messaging session used for outbound sends.
type Gateway interface {
	Send(ctx context.Context, chatID string, msg model.OutboundMessage) error
	Status(ctx context.Context) (model.SessionStatus, error)
}

// Relay accepts inbound messages for background dispatch.
type Relay interface {
	Go(ctx context.Context, msg model.InboundMessage)
}

// Deps are the services the handlers operate on.
type Deps struct {
	Whitelist     Whitelist
	Webhooks      Registry
	Backups       Backups
	Gateway       Gateway
	Relay         Relay
	InboundSecret string
}

// Handler wraps HTTP handlers with logger, validator and relay services.
type Handler struct {
	log      *zap.Logger
	validate *validator.Validate
	deps     Deps
	started  time.Time
}

// New creates a new Handler instance.
func New(log *zap.Logger, v *validator.Validate, deps Deps) *Handler {
	return &Handler{log: log, validate: v, deps: deps, started: time.Now()}
}

// Routes mounts every endpoint on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/", h.Index)
	r.Get("/healthz", h.Healthz)
	r.Get("/status", h.SessionStatus)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/send", h.Send)
	r.Get("/send", h.LegacySend)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/inbound", h.Inbound)

		r.Route("/whitelist", func(r chi.Router) {
			r.Get("/", h.ListNumbers)
			r.Post("/add", h.AddNumber)
			r.Delete("/{number}", h.RemoveNumber)
		})
		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", h.ListWebhooks)
			r.Post("/add", h.AddWebhook)
			r.Delete("/{id}", h.RemoveWebhook)
		})
		r.Route("/backup", func(r chi.Router) {
			r.Post("/create", h.CreateBackup)
			r.Post("/restore/{backupId}", h.RestoreBackup)
			r.Get("/list", h.ListBackups)
		})
	})
	return r
}

// Healthz is a simple health check endpoint.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Index is the plain text liveness banner.
func (h *Handler) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("venom relay is running"))
}

// decode reads a JSON body into dst and validates it. On failure it writes the
// 400 response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Error("failed to decode json", zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request payload",
		})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		h.log.Warn("validation failed", zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "validation failed",
			"fields":  apperror.CustomValidationError(err),
		})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("unable to write response stream", zap.Error(err))
	}
}

// writeError maps err onto a status code and a {success:false,error} body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Debug("request completed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
