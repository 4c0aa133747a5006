// Package gateway talks to the sidecar process that owns the messaging session.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

// ChatSuffix is appended to a number to address a direct chat.
const ChatSuffix = "@c.us"

// Client calls the gateway's HTTP API. Every call is bounded by the client timeout.
type Client struct {
	baseURL  string
	http     *http.Client
	maxMedia int64
	log      *zap.Logger
}

// New returns a Client for the gateway at baseURL.
func New(baseURL string, timeout time.Duration, maxMedia int64, log *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		maxMedia: maxMedia,
		log:      log,
	}
}

type sendBody struct {
	ChatID string `json:"chatId"`
	model.OutboundMessage
}

// Send asks the gateway to deliver msg to chatID.
func (c *Client) Send(ctx context.Context, chatID string, msg model.OutboundMessage) error {
	payload, err := json.Marshal(sendBody{ChatID: chatID, OutboundMessage: msg})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Debug("message sent", zap.String("chat_id", chatID), zap.String("type", msg.Type))
	return nil
}

// DownloadMedia fetches the attachment of an inbound message.
func (c *Client) DownloadMedia(ctx context.Context, messageID string) (*model.Media, error) {
	if messageID == "" {
		return nil, fmt.Errorf("%w: message id is required", apperror.ErrInvalidIdentifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/messages/"+url.PathEscape(messageID)+"/media", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// base64 inflates by 4/3; leave room for the JSON envelope.
	limit := c.maxMedia/3*4 + 4096
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading media: %w", apperror.ErrGatewayUnavailable, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("media for %s exceeds %d bytes", messageID, c.maxMedia)
	}

	var media model.Media
	if err := json.Unmarshal(body, &media); err != nil {
		return nil, fmt.Errorf("decoding media: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(media.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding media data: %w", err)
	}
	if int64(len(raw)) > c.maxMedia {
		return nil, fmt.Errorf("media for %s exceeds %d bytes", messageID, c.maxMedia)
	}
	return &media, nil
}

// Status reports the state of the messaging session.
func (c *Client) Status(ctx context.Context) (model.SessionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return model.SessionStatus{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return model.SessionStatus{}, err
	}
	defer resp.Body.Close()

	var status model.SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return model.SessionStatus{}, fmt.Errorf("%w: decoding status: %w", apperror.ErrGatewayUnavailable, err)
	}
	if status.Info == nil {
		status.Info = map[string]any{}
	}
	return status, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", apperror.ErrGatewayUnavailable, req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s returned %d: %s",
			apperror.ErrGatewayUnavailable, req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
