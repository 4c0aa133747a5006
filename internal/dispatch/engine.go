// Package dispatch gates inbound messages on the whitelist and fans them out to
// every registered webhook.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/metrics"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
	"github.com/diegocamara89/meu-venom-bot/internal/signature"
)

// Authorizer decides whether a sender may trigger dispatch.
type Authorizer interface {
	IsAuthorized(raw string) bool
}

// Subscribers lists the webhooks a message is delivered to.
type Subscribers interface {
	List() []model.WebhookEntry
}

// MediaDownloader fetches the attachment of an inbound message.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, messageID string) (*model.Media, error)
}

// Decision is the authorization verdict for an inbound message.
type Decision string

const (
	Authorized Decision = "authorized"
	Dropped    Decision = "dropped"
)

// Outcome summarizes what happened to one inbound message. Results is empty
// when the message was dropped.
type Outcome struct {
	Decision Decision
	Sender   string
	Results  []model.DispatchResult
}

// Config holds the delivery settings of an Engine.
type Config struct {
	Timeout time.Duration
	Secret  string
}

// Engine delivers inbound messages to the webhook registry.
type Engine struct {
	auth   Authorizer
	subs   Subscribers
	media  MediaDownloader
	client *http.Client
	cfg    Config
	log    *zap.Logger
}

// New returns an Engine. media may be nil, in which case attachments are never fetched.
func New(auth Authorizer, subs Subscribers, media MediaDownloader, cfg Config, log *zap.Logger) *Engine {
	return &Engine{
		auth:   auth,
		subs:   subs,
		media:  media,
		client: &http.Client{},
		cfg:    cfg,
		log:    log,
	}
}

// Authorize strips the chat suffix from a gateway address and checks the
// remainder against the whitelist.
func (e *Engine) Authorize(from string) (string, bool) {
	sender, _, _ := strings.Cut(from, "@")
	return sender, e.auth.IsAuthorized(sender)
}

// HandleInbound authorizes msg and, when allowed, broadcasts it. A dropped
// message makes no outbound requests.
func (e *Engine) HandleInbound(ctx context.Context, msg model.InboundMessage) Outcome {
	sender, ok := e.Authorize(msg.From)
	metrics.RecordInbound(ok)
	if !ok {
		e.log.Debug("message from unauthorized sender dropped", zap.String("sender", sender))
		return Outcome{Decision: Dropped, Sender: sender}
	}

	payload := e.BuildPayload(ctx, msg)
	return Outcome{
		Decision: Authorized,
		Sender:   sender,
		Results:  e.Broadcast(ctx, payload),
	}
}

// BuildPayload copies the message fields into the delivery body and attaches
// media when the message carries any. A failed download leaves Media unset.
func (e *Engine) BuildPayload(ctx context.Context, msg model.InboundMessage) model.DeliveryPayload {
	payload := model.DeliveryPayload{
		From:      msg.From,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		Type:      msg.Type,
		HasMedia:  msg.HasMedia,
	}
	if !msg.HasMedia || e.media == nil {
		return payload
	}

	media, err := e.media.DownloadMedia(ctx, msg.ID)
	if err != nil {
		e.log.Warn("media download failed, delivering without attachment",
			zap.String("message_id", msg.ID), zap.Error(err))
		return payload
	}
	payload.Media = media
	return payload
}

// Broadcast POSTs payload to every registered webhook concurrently and waits
// for all of them to settle. Results are in registry order.
func (e *Engine) Broadcast(ctx context.Context, payload model.DeliveryPayload) []model.DispatchResult {
	hooks := e.subs.List()
	results := make([]model.DispatchResult, len(hooks))
	if len(hooks) == 0 {
		e.log.Debug("no webhooks registered")
		return results
	}

	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("failed to marshal payload", zap.Error(err))
		for i, h := range hooks {
			results[i] = model.DispatchResult{WebhookID: h.ID, Error: err.Error()}
		}
		return results
	}

	// Deliveries outlive the request that triggered them but not the timeout.
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i, h := range hooks {
		i, h := i, h
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.deliver(ctx, h, body)
		}()
	}
	wg.Wait()

	var failed int
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	e.log.Info("message dispatched",
		zap.String("from", payload.From),
		zap.Int("webhooks", len(hooks)),
		zap.Int("failed", failed))
	return results
}

func (e *Engine) deliver(ctx context.Context, hook model.WebhookEntry, body []byte) model.DispatchResult {
	result := model.DispatchResult{WebhookID: hook.ID}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := e.post(ctx, hook.URL, body)
	duration := time.Since(start)
	metrics.RecordDelivery(err == nil, duration)

	if err != nil {
		result.Error = err.Error()
		e.log.Warn("POST failed",
			zap.String("webhook_id", hook.ID),
			zap.String("url", hook.URL),
			zap.Duration("duration", duration),
			zap.Error(err))
		return result
	}

	result.Success = true
	e.log.Debug("POST delivered",
		zap.String("webhook_id", hook.ID),
		zap.Duration("duration", duration))
	return result
}

var errTimeout = errors.New("timeout")

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Secret != "" {
		req.Header.Set(signature.Header, signature.Sign(e.cfg.Secret, body))
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errTimeout
		}
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errTimeout
		}
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
