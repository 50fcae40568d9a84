package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/pkg/syncmap"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	DefaultBaseURL = "https://discord.com/api/v10"

	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultTimeout      = 20 * time.Second
)

var UserAgent = "DiscordBot (https://github.com/WelcomerTeam/Sandwich-Client, 1.0)"

// Request is a single REST call. Its body is kept so it can be sent again.
type Request struct {
	Headers     http.Header
	Method      string
	Endpoint    string
	ContentType string
	Reason      string
	Body        []byte

	ctx      context.Context
	result   chan result
	attempts int
}

// Response is a successful REST response.
type Response struct {
	Header     http.Header
	Body       []byte
	StatusCode int
}

type result struct {
	response *Response
	err      error
}

// Queue dispatches REST requests through per route buckets and the global gate.
type Queue struct {
	ctx    context.Context
	cancel context.CancelFunc

	Logger zerolog.Logger

	client    *http.Client
	baseURL   string
	token     string
	userAgent string

	maxRetries   int
	retryBackoff time.Duration

	global  *GlobalRateLimit
	buckets syncmap.Map[string, *Bucket]

	closeMu sync.RWMutex
	closed  *atomic.Bool
	drains  sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

func WithBaseURL(baseURL string) Option {
	return func(q *Queue) {
		q.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(q *Queue) {
		q.client = client
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(q *Queue) {
		q.Logger = logger
	}
}

// WithRetries sets how often 5xx and transport failures are retried and the
// initial backoff between them.
func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(q *Queue) {
		q.maxRetries = maxRetries
		q.retryBackoff = backoff
	}
}

// WithGlobalRate sets the proactive request pace, 0 disables it.
func WithGlobalRate(requestsPerSecond int) Option {
	return func(q *Queue) {
		q.global = NewGlobalRateLimit(requestsPerSecond)
	}
}

func WithUserAgent(userAgent string) Option {
	return func(q *Queue) {
		q.userAgent = userAgent
	}
}

// NewQueue creates a request queue authenticating with token.
func NewQueue(token string, opts ...Option) *Queue {
	q := &Queue{
		Logger: zerolog.Nop(),

		client:    &http.Client{Timeout: DefaultTimeout},
		baseURL:   DefaultBaseURL,
		token:     token,
		userAgent: UserAgent,

		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,

		global: NewGlobalRateLimit(GlobalRequestsPerSecond),

		closed: atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())

	return q
}

// Global returns the global rate limit shared by every bucket.
func (q *Queue) Global() *GlobalRateLimit {
	return q.global
}

// Bucket returns the bucket for a route key, if one has been created.
func (q *Queue) Bucket(key string) (*Bucket, bool) {
	return q.buckets.Load(key)
}

// Buckets returns how many buckets have been created.
func (q *Queue) Buckets() int {
	return q.buckets.Count()
}

// Do enqueues a request and waits for its outcome. Requests sharing a bucket
// are sent in the order Do was called.
func (q *Queue) Do(ctx context.Context, req *Request) (*Response, error) {
	req.ctx = ctx
	req.result = make(chan result, 1)
	req.attempts = 0

	key := BucketKey(req.Method, req.Endpoint)

	q.closeMu.RLock()

	if q.closed.Load() {
		q.closeMu.RUnlock()

		return nil, ErrQueueClosed
	}

	bucket, loaded := q.buckets.LoadOrCreate(key, func() *Bucket { return newBucket(key) })
	if !loaded {
		q.Logger.Debug().Str("bucket", key).Msg("Created bucket")
	}

	bucket.mu.Lock()
	bucket.queue = append(bucket.queue, req)

	if !bucket.running {
		bucket.running = true

		q.drains.Add(1)

		go q.drain(bucket)
	}
	bucket.mu.Unlock()

	q.closeMu.RUnlock()

	select {
	case res := <-req.result:
		return res.response, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain sends the requests of a bucket one at a time until it is empty.
func (q *Queue) drain(bucket *Bucket) {
	defer q.drains.Done()

	logger := q.Logger.With().Str("bucket", bucket.key).Logger()

	for {
		bucket.mu.Lock()

		if len(bucket.queue) == 0 {
			bucket.running = false
			bucket.mu.Unlock()

			return
		}

		req := bucket.queue[0]
		bucket.mu.Unlock()

		if q.ctx.Err() != nil {
			q.pop(bucket, req, nil, ErrQueueClosed)

			continue
		}

		if req.ctx.Err() != nil {
			q.pop(bucket, req, nil, req.ctx.Err())

			continue
		}

		response, retryAfter, err := q.send(bucket, req, logger)
		if retryAfter > 0 {
			// The request stays at the head of its bucket.
			if sleepErr := sleep(q.ctx, retryAfter); sleepErr != nil {
				q.pop(bucket, req, nil, ErrQueueClosed)
			}

			continue
		}

		q.pop(bucket, req, response, err)
	}
}

func (q *Queue) pop(bucket *Bucket, req *Request, response *Response, err error) {
	bucket.mu.Lock()
	if len(bucket.queue) > 0 && bucket.queue[0] == req {
		bucket.queue = bucket.queue[1:]
	}
	bucket.mu.Unlock()

	req.result <- result{response: response, err: err}
}

// send performs a single attempt. A positive retryAfter means the request
// must be sent again after that long.
func (q *Queue) send(bucket *Bucket, req *Request, logger zerolog.Logger) (*Response, time.Duration, error) {
	ctx, cancel := mergeContext(req.ctx, q.ctx)
	defer cancel()

	if err := bucket.wait(ctx); err != nil {
		return nil, 0, q.contextError(req, err)
	}

	if err := q.global.Wait(ctx); err != nil {
		return nil, 0, q.contextError(req, err)
	}

	httpReq, err := q.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.attempts++

	start := time.Now()

	resp, err := q.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, q.contextError(req, ctx.Err())
		}

		restRequestsTotal.WithLabelValues(req.Method, "error").Inc()

		return q.retry(req, logger, fmt.Errorf("failed to do request: %w", err))
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()

	restRequestsTotal.WithLabelValues(req.Method, strconv.Itoa(resp.StatusCode)).Inc()
	restRequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		return q.retry(req, logger, fmt.Errorf("failed to read response: %w", err))
	}

	headers := parseRateLimitHeaders(resp.Header)
	bucket.update(headers)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Rate limits do not count towards the retry budget.
		req.attempts--

		return nil, q.handleTooManyRequests(bucket, headers, body, logger), nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return q.retry(req, logger, NewRestError(req.Method, req.Endpoint, resp.StatusCode, body))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, 0, NewRestError(req.Method, req.Endpoint, resp.StatusCode, body)
	}

	return &Response{
		Header:     resp.Header,
		Body:       body,
		StatusCode: resp.StatusCode,
	}, 0, nil
}

func (q *Queue) handleTooManyRequests(bucket *Bucket, headers rateLimitHeaders, body []byte, logger zerolog.Logger) time.Duration {
	var tooManyRequests discord.TooManyRequests

	_ = sandwichjson.Unmarshal(body, &tooManyRequests)

	retryAfter := headers.retryAfter
	if !headers.hasRetry {
		retryAfter = time.Duration(tooManyRequests.RetryAfter * float64(time.Second))
	}

	if retryAfter <= 0 {
		retryAfter = time.Second
	}

	global := headers.global || tooManyRequests.Global

	if global {
		restRateLimitedTotal.WithLabelValues("global").Inc()
		q.global.Lockout(retryAfter)
	} else {
		restRateLimitedTotal.WithLabelValues("bucket").Inc()
		bucket.lockout(retryAfter)
	}

	logger.Warn().
		Bool("global", global).
		Str("scope", headers.scope).
		Dur("retryAfter", retryAfter).
		Msg("Hit rate limit")

	// Bucket and global gates hold the request until the lockout ends.
	return time.Nanosecond
}

func (q *Queue) retry(req *Request, logger zerolog.Logger, err error) (*Response, time.Duration, error) {
	if req.attempts > q.maxRetries {
		return nil, 0, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, req.attempts, err)
	}

	backoff := q.retryBackoff << (req.attempts - 1)
	jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)+1))
	if jitter <= 0 {
		jitter = time.Nanosecond
	}

	logger.Debug().
		Err(err).
		Int("attempt", req.attempts).
		Dur("backoff", jitter).
		Str("endpoint", req.Endpoint).
		Msg("Retrying request")

	return nil, jitter, nil
}

func (q *Queue) contextError(req *Request, err error) error {
	if req.ctx.Err() != nil {
		return req.ctx.Err()
	}

	if q.ctx.Err() != nil {
		return ErrQueueClosed
	}

	return err
}

func (q *Queue) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	endpoint := req.Endpoint
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, q.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}

	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	if q.token != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", "Bot "+q.token)
	}

	httpReq.Header.Set("User-Agent", q.userAgent)

	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	if req.Reason != "" {
		httpReq.Header.Set(headerReason, url.PathEscape(req.Reason))
	}

	return httpReq, nil
}

// Close stops accepting requests and waits for queued ones to finish. When
// ctx ends first the remaining requests fail with ErrQueueClosed.
func (q *Queue) Close(ctx context.Context) error {
	q.closeMu.Lock()
	q.closed.Store(true)
	q.closeMu.Unlock()

	done := make(chan struct{})

	go func() {
		q.drains.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()

		return nil
	case <-ctx.Done():
		q.cancel()
		<-done

		return ctx.Err()
	}
}

// Closed reports whether Close or Kill has been called.
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

// Kill stops the queue immediately, failing every queued request.
func (q *Queue) Kill() {
	q.closeMu.Lock()
	q.closed.Store(true)
	q.closeMu.Unlock()

	q.cancel()
	q.drains.Wait()
}

// mergeContext returns a context that is done when either parent is done.
func mergeContext(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)

	stop := context.AfterFunc(other, cancel)

	return merged, func() {
		stop()
		cancel()
	}
}
