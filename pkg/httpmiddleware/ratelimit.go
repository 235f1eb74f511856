package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Quota is the outcome of one rate limit decision.
type Quota struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter counts requests per key over a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Quota, error)
	Limit() int
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Limiter Limiter
	// KeyFunc defaults to the client IP.
	KeyFunc func(*http.Request) string
}

// RateLimit rejects requests over quota with 429. Limiter errors are logged
// and the request is let through.
func RateLimit(cfg RateLimitConfig) Middleware {
	keyFn := cfg.KeyFunc
	if keyFn == nil {
		keyFn = ClientIP
	}
	limit := strconv.Itoa(cfg.Limiter.Limit())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			q, err := cfg.Limiter.Allow(r.Context(), keyFn(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(q.Reset.Unix(), 10))
			if !q.Allowed {
				wait := max(q.Reset.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
