package rest

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerResetAfter = "X-RateLimit-Reset-After"
	headerBucket     = "X-RateLimit-Bucket"
	headerGlobal     = "X-RateLimit-Global"
	headerScope      = "X-RateLimit-Scope"
	headerRetryAfter = "Retry-After"
	headerDate       = "Date"
	headerReason     = "X-Audit-Log-Reason"
)

type rateLimitHeaders struct {
	bucket       string
	scope        string
	resetAfter   time.Duration
	retryAfter   time.Duration
	limit        int
	remaining    int
	hasRemaining bool
	hasReset     bool
	hasRetry     bool
	global       bool
}

// parseRateLimitHeaders reads the rate limit headers of a response. Absolute
// reset times are converted to a relative duration against the server's Date
// header so the local clock does not need to agree with the server.
func parseRateLimitHeaders(header http.Header) rateLimitHeaders {
	h := rateLimitHeaders{
		bucket: header.Get(headerBucket),
		scope:  header.Get(headerScope),
		global: header.Get(headerGlobal) == "true",
	}

	if v, err := strconv.Atoi(header.Get(headerLimit)); err == nil {
		h.limit = v
	}

	if v, err := strconv.Atoi(header.Get(headerRemaining)); err == nil {
		h.remaining = v
		h.hasRemaining = true
	}

	if v, ok := parseSeconds(header.Get(headerResetAfter)); ok {
		h.resetAfter = v
		h.hasReset = true
	} else if reset, err := strconv.ParseFloat(header.Get(headerReset), 64); err == nil {
		serverNow := time.Now()

		if date, err := http.ParseTime(header.Get(headerDate)); err == nil {
			serverNow = date
		}

		sec, frac := math.Modf(reset)
		resetAt := time.Unix(int64(sec), int64(frac*float64(time.Second)))

		h.resetAfter = resetAt.Sub(serverNow)
		h.hasReset = true

		if h.resetAfter < 0 {
			h.resetAfter = 0
		}
	}

	if v, ok := parseSeconds(header.Get(headerRetryAfter)); ok {
		h.retryAfter = v
		h.hasRetry = true
	}

	return h
}

func parseSeconds(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 {
		return 0, false
	}

	return time.Duration(seconds * float64(time.Second)), true
}
