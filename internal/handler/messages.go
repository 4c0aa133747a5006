package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/gateway"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
	"github.com/diegocamara89/meu-venom-bot/internal/signature"
	"github.com/diegocamara89/meu-venom-bot/internal/whitelist"
)

const maxInboundBody = 1 << 20

// Inbound accepts a message event from the gateway. The response never
// reveals whether the sender was authorized.
func (h *Handler) Inbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInboundBody))
	if err != nil {
		h.log.Warn("failed to read inbound body", zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request payload",
		})
		return
	}

	if h.deps.InboundSecret != "" {
		if err := signature.Verify(h.deps.InboundSecret, body, r.Header.Get(signature.Header)); err != nil {
			h.log.Warn("inbound signature rejected", zap.Error(err))
			h.writeJSON(w, http.StatusUnauthorized, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	var msg model.InboundMessage
	if !h.decode(w, r, &msg) {
		return
	}

	h.deps.Relay.Go(r.Context(), msg)
	h.writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

// Send delivers a message through the gateway to a whitelisted number.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	if !h.decode(w, r, &req) {
		return
	}

	chatID, err := h.authorizeRecipient(req.Number)
	if err != nil {
		h.writeJSON(w, apperror.HTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	msg := outboundMessage(req)
	if err := h.deps.Gateway.Send(r.Context(), chatID, msg); err != nil {
		h.log.Error("send failed", zap.String("chat_id", chatID), zap.Error(err))
		h.writeJSON(w, apperror.HTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	h.log.Info("message sent", zap.String("chat_id", chatID), zap.String("type", msg.Type))
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// LegacySend is GET /send?number=&message=, kept for old integrations. It
// answers in plain text.
func (h *Handler) LegacySend(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	message := r.URL.Query().Get("message")
	if number == "" || message == "" {
		http.Error(w, "number and message are required", http.StatusBadRequest)
		return
	}

	chatID, err := h.authorizeRecipient(number)
	if err != nil {
		http.Error(w, err.Error(), apperror.HTTPStatus(err))
		return
	}

	if err := h.deps.Gateway.Send(r.Context(), chatID, model.OutboundMessage{Type: model.KindText, Text: message}); err != nil {
		h.log.Error("send failed", zap.String("chat_id", chatID), zap.Error(err))
		http.Error(w, err.Error(), apperror.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Message sent"))
}

// authorizeRecipient applies the outbound whitelist gate and returns the chat id.
func (h *Handler) authorizeRecipient(number string) (string, error) {
	digits, err := whitelist.Normalize(number)
	if err != nil {
		return "", err
	}
	if !h.deps.Whitelist.IsAuthorized(digits) {
		return "", fmt.Errorf("%w: %s", apperror.ErrNotAuthorized, digits)
	}
	return digits + gateway.ChatSuffix, nil
}

func outboundMessage(req model.SendRequest) model.OutboundMessage {
	switch req.Type {
	case model.KindLocation:
		return model.OutboundMessage{Type: model.KindText, Text: mapsLink(*req.Latitude, *req.Longitude)}
	case model.KindImage, model.KindDocument, model.KindAudio, model.KindVideo:
		return model.OutboundMessage{Type: req.Type, MediaURL: req.Message}
	default:
		return model.OutboundMessage{Type: model.KindText, Text: req.Message}
	}
}

func mapsLink(lat, lng float64) string {
	return "https://maps.google.com/maps?q=" +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}
