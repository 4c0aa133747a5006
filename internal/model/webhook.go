package model

import "time"

// WebhookEntry is a registered subscriber endpoint.
type WebhookEntry struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DispatchResult is the outcome of a single delivery attempt.
type DispatchResult struct {
	WebhookID string `json:"webhookId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// WhitelistDocument is the on-disk shape of whitelist.json.
type WhitelistDocument struct {
	Numbers []string `json:"numbers"`
}

// WebhooksDocument is the on-disk shape of webhooks.json.
type WebhooksDocument struct {
	Webhooks []WebhookEntry `json:"webhooks"`
}
