// SPDX-License-Identifier: MIT

package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	xglog "github.com/yoyostream/transcoderd/internal/log"
)

// RateLimitConfig configures a sliding-window limiter. A nil KeyFunc
// limits per client IP.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
	KeyFunc      func(r *http.Request) (string, error)
}

// RateLimit rejects requests over the limit with 429 and a Retry-After
// covering one window.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = httprate.KeyByIP
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			body := map[string]string{"error": "rate limit exceeded"}
			if id := xglog.RequestIDFromContext(r.Context()); id != "" {
				body["requestId"] = id
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(cfg.WindowSize.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(body)
		}),
	)
}

// MutationRateLimit limits reloads and manual sweeps per client IP.
// A non-positive limit disables limiting.
func MutationRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return RateLimit(RateLimitConfig{
		RequestLimit: perMinute,
		WindowSize:   time.Minute,
	})
}
