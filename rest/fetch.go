package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
)

// Fetch sends a raw body and returns the raw response body.
func (q *Queue) Fetch(ctx context.Context, method, endpoint, contentType string, body []byte, headers http.Header) ([]byte, error) {
	resp, err := q.Do(ctx, &Request{
		Headers:     headers,
		Method:      method,
		Endpoint:    endpoint,
		ContentType: contentType,
		Body:        body,
	})
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// FetchBJ sends a raw body and decodes the JSON response into response.
func (q *Queue) FetchBJ(ctx context.Context, method, endpoint, contentType string, body []byte, response any) error {
	data, err := q.Fetch(ctx, method, endpoint, contentType, body, nil)
	if err != nil {
		return err
	}

	if response == nil || len(data) == 0 {
		return nil
	}

	if err := sandwichjson.Unmarshal(data, response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// FetchJJ encodes payload as JSON and decodes the JSON response into response.
func (q *Queue) FetchJJ(ctx context.Context, method, endpoint string, payload, response any) error {
	var body []byte

	if payload != nil {
		var err error

		body, err = sandwichjson.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	return q.FetchBJ(ctx, method, endpoint, "application/json", body, response)
}

// Gateway returns the gateway url.
func (q *Queue) Gateway(ctx context.Context) (*discord.GatewayResponse, error) {
	var gateway discord.GatewayResponse

	if err := q.FetchJJ(ctx, http.MethodGet, "/gateway", nil, &gateway); err != nil {
		return nil, fmt.Errorf("failed to get gateway: %w", err)
	}

	return &gateway, nil
}

// GatewayBot returns the gateway url, recommended shard count and session
// start limits of the token.
func (q *Queue) GatewayBot(ctx context.Context) (*discord.GatewayBotResponse, error) {
	var gateway discord.GatewayBotResponse

	if err := q.FetchJJ(ctx, http.MethodGet, "/gateway/bot", nil, &gateway); err != nil {
		return nil, fmt.Errorf("failed to get gateway bot: %w", err)
	}

	return &gateway, nil
}
