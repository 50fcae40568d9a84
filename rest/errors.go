package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"golang.org/x/xerrors"
)

var (
	ErrUnauthorized = xerrors.New("Improper token was passed")
	ErrQueueClosed  = xerrors.New("Request queue is closed")
	ErrMaxRetries   = xerrors.New("Exceeded maximum retries")
)

// RestError is a terminal non successful response. It is never retried.
type RestError struct {
	Errors     json.RawMessage
	Method     string
	Endpoint   string
	Message    string
	Body       []byte
	StatusCode int
	Code       int32
}

// NewRestError parses the error body of a response.
func NewRestError(method, endpoint string, statusCode int, body []byte) *RestError {
	var message discord.ErrorMessage

	_ = sandwichjson.Unmarshal(body, &message)

	if message.Message == "" {
		message.Message = http.StatusText(statusCode)
	}

	return &RestError{
		Errors:     message.Errors,
		Method:     method,
		Endpoint:   endpoint,
		Message:    message.Message,
		Body:       body,
		StatusCode: statusCode,
		Code:       message.Code,
	}
}

func (e *RestError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: %d %s (code %d)", e.Method, e.Endpoint, e.StatusCode, e.Message, e.Code)
	}

	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
}

func (e *RestError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	return nil
}

// Retryable reports whether the status is worth sending again.
func (e *RestError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}
