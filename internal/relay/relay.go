// Package relay connects inbound gateway events to the dispatch engine.
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/diegocamara89/meu-venom-bot/internal/apperror"
	"github.com/diegocamara89/meu-venom-bot/internal/dispatch"
	"github.com/diegocamara89/meu-venom-bot/internal/model"
)

const (
	pingCommand = "!ping"
	pongReply   = "pong"
)

// Dispatcher fans an inbound message out to webhooks.
type Dispatcher interface {
	HandleInbound(ctx context.Context, msg model.InboundMessage) dispatch.Outcome
}

// Sender delivers a reply through the messaging gateway.
type Sender interface {
	Send(ctx context.Context, chatID string, msg model.OutboundMessage) error
}

// Relay handles inbound messages in the background.
type Relay struct {
	dispatcher Dispatcher
	sender     Sender
	log        *zap.Logger

	wg sync.WaitGroup
}

func New(dispatcher Dispatcher, sender Sender, log *zap.Logger) *Relay {
	return &Relay{dispatcher: dispatcher, sender: sender, log: log}
}

// Handle answers the ping command and dispatches msg.
func (r *Relay) Handle(ctx context.Context, msg model.InboundMessage) dispatch.Outcome {
	if strings.TrimSpace(msg.Body) == pingCommand && r.sender != nil {
		if err := r.sender.Send(ctx, msg.From, model.OutboundMessage{Type: model.KindText, Text: pongReply}); err != nil {
			r.log.Warn("ping reply failed", zap.String("from", msg.From), zap.Error(err))
		}
	}

	out := r.dispatcher.HandleInbound(ctx, msg)
	if out.Decision == dispatch.Dropped {
		r.log.Debug("inbound message dropped", zap.String("sender", out.Sender))
		return out
	}

	for _, res := range out.Results {
		if res.Success {
			r.log.Info("webhook delivered", zap.String("message_id", msg.ID), zap.String("webhook_id", res.WebhookID))
			continue
		}
		r.log.Warn("webhook delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("webhook_id", res.WebhookID),
			zap.Error(fmt.Errorf("%w: %s", apperror.ErrDelivery, res.Error)))
	}
	return out
}

// Go handles msg on a tracked goroutine detached from ctx's cancellation.
func (r *Relay) Go(ctx context.Context, msg model.InboundMessage) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Handle(ctx, msg)
	}()
}

// Wait blocks until every message started with Go has been handled.
func (r *Relay) Wait() {
	r.wg.Wait()
}
