package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roaia/internal/httputil"
)

func newRateLimited(t *testing.T, cfg RateLimitConfig) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return RateLimit(rdb, cfg, zap.NewNop())(ok), mr
}

func loginFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = ip + ":51000"
	return req
}

func TestRateLimit_BlocksAfterCapacity(t *testing.T) {
	h, _ := newRateLimited(t, RateLimitConfig{
		Enabled: true, Capacity: 3, RefillTokens: 1, RefillInterval: time.Minute, TTL: 10 * time.Minute,
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, loginFrom("10.0.0.1"))
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, loginFrom("10.0.0.1"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, httputil.ErrCodeRateLimited, decodeErrorCode(t, rec))
}

func TestRateLimit_SeparateBucketsPerClientAndPath(t *testing.T) {
	h, _ := newRateLimited(t, RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, loginFrom("10.0.0.1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, loginFrom("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, loginFrom("10.0.0.2"))
	assert.Equal(t, http.StatusOK, rec.Code)

	otp := httptest.NewRequest(http.MethodPost, "/api/auth/verify-otp", nil)
	otp.RemoteAddr = "10.0.0.1:51000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, otp)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_KeyExpires(t *testing.T) {
	h, mr := newRateLimited(t, RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: 5 * time.Minute,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, loginFrom("10.0.0.1"))
	require.Equal(t, http.StatusOK, rec.Code)

	key := "rl:ip:10.0.0.1:route:POST /api/auth/login"
	require.True(t, mr.Exists(key))
	assert.Equal(t, 5*time.Minute, mr.TTL(key))
}

func TestRateLimit_FailsOpenWhenRedisIsDown(t *testing.T) {
	h, mr := newRateLimited(t, RateLimitConfig{Enabled: true, Capacity: 1})
	mr.Close()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, loginFrom("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(nil, RateLimitConfig{Enabled: false}, zap.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, loginFrom("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}
