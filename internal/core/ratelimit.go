package core

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders holds provider-reported rate limit values. Nil fields
// were not present on the response.
type RateLimitHeaders struct {
	Remaining *int
	Limit     *int
	ResetAt   *time.Time
}

// Present reports whether any rate limit header was found.
func (h RateLimitHeaders) Present() bool {
	return h.Remaining != nil || h.Limit != nil || h.ResetAt != nil
}

// ParseRateLimitHeaders reads the x-ratelimit-* / x-rate-limit-* family.
// Reset values are epoch seconds.
func ParseRateLimitHeaders(header http.Header) RateLimitHeaders {
	var parsed RateLimitHeaders
	if header == nil {
		return parsed
	}

	if value, ok := headerInt(header, "X-Ratelimit-Remaining", "X-Rate-Limit-Remaining"); ok {
		parsed.Remaining = &value
	}
	if value, ok := headerInt(header, "X-Ratelimit-Limit", "X-Rate-Limit-Limit"); ok {
		parsed.Limit = &value
	}
	if value, ok := headerInt(header, "X-Ratelimit-Reset", "X-Rate-Limit-Reset"); ok {
		reset := time.Unix(int64(value), 0).UTC()
		parsed.ResetAt = &reset
	}

	return parsed
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	retry := strings.TrimSpace(header.Get("Retry-After"))
	if retry == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retry); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(retry); err == nil && parsed.After(now) {
		return parsed.Sub(now)
	}
	return 0
}

func headerInt(header http.Header, names ...string) (int, bool) {
	for _, name := range names {
		raw := strings.TrimSpace(header.Get(name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		return value, true
	}
	return 0, false
}
