// Package model holds the payloads exchanged with the messaging gateway and webhook subscribers.
package model

// InboundMessage is an event received from the messaging gateway.
type InboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from" validate:"required"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	HasMedia  bool   `json:"hasMedia"`
}

// Media is an attachment downloaded from the gateway. Data is base64 encoded.
type Media struct {
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data"`
}

// DeliveryPayload is the JSON body POSTed to every registered webhook.
type DeliveryPayload struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	HasMedia  bool   `json:"hasMedia"`
	Media     *Media `json:"media,omitempty"`
}

// Outbound message kinds accepted by POST /send.
const (
	KindText     = "text"
	KindImage    = "image"
	KindDocument = "document"
	KindAudio    = "audio"
	KindVideo    = "video"
	KindLocation = "location"
)

// OutboundMessage is what the gateway is asked to deliver to a chat.
type OutboundMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// SessionStatus reports the state of the gateway's messaging session.
type SessionStatus struct {
	Status string         `json:"status"`
	Info   map[string]any `json:"info"`
}
