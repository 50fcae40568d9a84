package sandwich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"golang.org/x/xerrors"
)

var ErrIdentifyRejected = xerrors.New("Identify request was rejected")

// IdentifyViaURL asks an external service for permission to identify. This
// allows many processes sharing a token to coordinate their identifies.
// The shard waits for its local identify slot first.
//
// The URL may contain formatting tags:
// - {shard_id}
// - {shard_count}
// - {token}
// - {token_hash}
// - {max_concurrency}
//
// A 200 or 204 response allows the identify. A 401 or 403 is returned as
// an error. Anything else is retried after the X-Retry-After-Ms header, or
// IdentifyRetry when it is missing.
type IdentifyViaURL struct {
	Client  *http.Client
	Headers map[string]string
	URL     string
}

func NewIdentifyViaURL(identifyURL string, headers map[string]string) *IdentifyViaURL {
	return &IdentifyViaURL{
		Client:  http.DefaultClient,
		Headers: headers,
		URL:     identifyURL,
	}
}

type identifyPayload struct {
	Token          string `json:"token"`
	TokenHash      string `json:"token_hash"`
	ShardID        int32  `json:"shard_id"`
	ShardCount     int32  `json:"shard_count"`
	MaxConcurrency int32  `json:"max_concurrency"`
}

func (i *IdentifyViaURL) formatURL(payload identifyPayload) string {
	return strings.NewReplacer(
		"{shard_id}", strconv.Itoa(int(payload.ShardID)),
		"{shard_count}", strconv.Itoa(int(payload.ShardCount)),
		"{token}", url.PathEscape(payload.Token),
		"{token_hash}", payload.TokenHash,
		"{max_concurrency}", strconv.Itoa(int(payload.MaxConcurrency)),
	).Replace(i.URL)
}

func (i *IdentifyViaURL) Identify(ctx context.Context, shard *Shard) error {
	err := shard.Manager.AcquireIdentifySlot(ctx, shard.ShardID)
	if err != nil {
		return err
	}

	token := shard.Manager.Configuration().Token

	payload := identifyPayload{
		Token:          token,
		TokenHash:      tokenHash(token),
		ShardID:        shard.ShardID,
		ShardCount:     shard.Manager.ShardCount(),
		MaxConcurrency: shard.Manager.Concurrency(),
	}

	identifyURL := i.formatURL(payload)

	if _, err = url.Parse(identifyURL); err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	body, err := sandwichjson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal identify payload: %w", err)
	}

	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}

	for {
		retryAfter, err := i.attempt(ctx, client, identifyURL, body)
		if err != nil || retryAfter == 0 {
			return err
		}

		shard.Logger.Debug().Dur("retry", retryAfter).Msg("Identify service asked to wait")

		if err := sleepContext(ctx, retryAfter); err != nil {
			return err
		}
	}
}

func (i *IdentifyViaURL) attempt(ctx context.Context, client *http.Client, identifyURL string, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, identifyURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create identify request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range i.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		return IdentifyRetry, nil
	}

	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return 0, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return 0, fmt.Errorf("%w: status %d", ErrIdentifyRejected, resp.StatusCode)
	}

	if retryAfterMs, _ := strconv.Atoi(resp.Header.Get("X-Retry-After-Ms")); retryAfterMs > 0 {
		return time.Duration(retryAfterMs) * time.Millisecond, nil
	}

	return IdentifyRetry, nil
}
