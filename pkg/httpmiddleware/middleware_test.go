package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestWrapOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	do(Wrap(ok(), mark("a"), mark("b"), mark("c")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "missing", incoming: "", keep: false},
		{name: "valid", incoming: "abc-123", keep: true},
		{name: "control chars", incoming: "abc\x01", keep: false},
		{name: "too long", incoming: strings.Repeat("a", 129), keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				r.Header.Set(RequestIDHeader, tt.incoming)
			}
			w := do(h, r)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), InjectLogger(zap.New(core)), Recovery())

	w := do(h, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"internal server error"}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("Handler panic").Len())
}

func TestRecoveryAbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	r.Use(LogRequests())
	r.Get("/coupons/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	})
	h := Wrap(r, RequestID(), InjectLogger(zap.New(core)))

	req := httptest.NewRequest(http.MethodGet, "/coupons/42", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	do(h, req)

	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/coupons/{id}", fields["route"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, int64(4), fields["bytes"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("inside")
	}), RequestID(), InjectLogger(zap.New(core)))

	do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	entries := logs.FilterMessage("inside").All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{Origins: []string{"https://shop.example"}, MaxAge: 600})(ok())

	pre := httptest.NewRequest(http.MethodOptions, "/coupons", nil)
	pre.Header.Set("Origin", "https://shop.example")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := do(h, pre)
	assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))

	other := httptest.NewRequest(http.MethodGet, "/coupons", nil)
	other.Header.Set("Origin", "https://evil.example")
	w = do(h, other)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2"}, want: "10.0.0.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "10.0.0.3"}, want: "10.0.0.3"},
		{name: "remote addr", remote: "192.168.1.1:5555", want: "192.168.1.1"},
		{name: "remote without port", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	q, _ := l.Allow(ctx, "a", base)
	assert.True(t, q.Allowed)
	assert.Equal(t, 1, q.Remaining)
	q, _ = l.Allow(ctx, "a", base.Add(time.Second))
	assert.True(t, q.Allowed)
	assert.Equal(t, 0, q.Remaining)
	q, _ = l.Allow(ctx, "a", base.Add(2*time.Second))
	assert.False(t, q.Allowed)
	assert.Equal(t, base.Add(time.Minute), q.Reset)

	q, _ = l.Allow(ctx, "b", base.Add(2*time.Second))
	assert.True(t, q.Allowed, "keys are independent")

	// Half way through the next window half of the previous count remains.
	q, _ = l.Allow(ctx, "a", base.Add(90*time.Second))
	assert.True(t, q.Allowed)
	q, _ = l.Allow(ctx, "a", base.Add(90*time.Second))
	assert.False(t, q.Allowed)

	q, _ = l.Allow(ctx, "a", base.Add(5*time.Minute))
	assert.True(t, q.Allowed)

	l.evict(base.Add(10 * time.Minute))
	assert.Empty(t, l.buckets)
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewRedisLimiter(rdb, "rl:", 2, time.Minute)
	ctx := context.Background()
	now := time.Now()

	for i := range 2 {
		q, err := l.Allow(ctx, "ip", now.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
		assert.True(t, q.Allowed)
		assert.Equal(t, 1-i, q.Remaining)
	}
	q, err := l.Allow(ctx, "ip", now.Add(2*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, q.Allowed)

	q, err = l.Allow(ctx, "ip", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, q.Allowed, "old entries fall out of the window")
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, time.Time) (Quota, error) {
	return Quota{}, errors.New("redis down")
}

func (brokenLimiter) Limit() int { return 1 }

func TestRateLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewMemoryLimiter(1, time.Minute)})(ok())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.1.1:1"
	w := do(h, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(h, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())

	open := RateLimit(RateLimitConfig{Limiter: brokenLimiter{}})(ok())
	assert.Equal(t, http.StatusOK, do(open, r).Code)
}
