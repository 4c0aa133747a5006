package model

// AddNumberRequest is the body of POST /api/whitelist/add.
type AddNumberRequest struct {
	Number string `json:"number" validate:"required"`
}

// AddWebhookRequest is the body of POST /api/webhooks/add.
type AddWebhookRequest struct {
	URL         string `json:"url" validate:"required"`
	Description string `json:"description"`
}

// SendRequest is the body of POST /send.
type SendRequest struct {
	Number    string   `json:"number" validate:"required,phone"`
	Message   string   `json:"message" validate:"required_unless=Type location"`
	Type      string   `json:"type" validate:"omitempty,oneof=text image document audio video location"`
	Latitude  *float64 `json:"latitude" validate:"required_if=Type location"`
	Longitude *float64 `json:"longitude" validate:"required_if=Type location"`
}
