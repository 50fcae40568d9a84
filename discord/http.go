package discord

import "encoding/json"

// http.go represents the structures of the endpoints the client core uses.

// GatewayResponse represents a GET /gateway response.
type GatewayResponse struct {
	URL string `json:"url"`
}

// GatewayBotResponse represents a GET /gateway/bot response.
type GatewayBotResponse struct {
	URL               string            `json:"url"`
	Shards            int32             `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// SessionStartLimit is the identify budget of the current token.
type SessionStartLimit struct {
	Total          int32 `json:"total"`
	Remaining      int32 `json:"remaining"`
	ResetAfter     int64 `json:"reset_after"`
	MaxConcurrency int32 `json:"max_concurrency"`
}

// ErrorMessage is the body of a non successful REST response.
type ErrorMessage struct {
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors,omitempty"`
	Code    int32           `json:"code"`
}

// TooManyRequests is the body of a 429 response.
type TooManyRequests struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
	Code       int32   `json:"code,omitempty"`
}
