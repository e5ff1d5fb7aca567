package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roaia/internal/handler"
	"roaia/internal/model"
	authmw "roaia/internal/transport/http/middleware"
)

const (
	routerSecret   = "router-secret"
	routerIssuer   = "roaia"
	routerAudience = "roaia-clients"
)

// newTestRouter wires handlers without services; requests that reach a
// service would panic, so each case stops at middleware or input checks.
func newTestRouter(t *testing.T, authLimit func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	log := zap.NewNop()
	return NewRouter(RouterConfig{
		AuthHandler:         handler.NewAuthHandler(nil, nil, nil, log),
		DashboardHandler:    handler.NewDashboardHandler(nil, log),
		AccountHandler:      handler.NewAccountHandler(nil, nil, log),
		NotificationHandler: handler.NewNotificationHandler(nil, log),
		GPSHandler:          handler.NewGPSHandler(nil, nil, nil, log),
		AssistantHandler:    handler.NewAssistantHandler(nil, log),
		Tokens:              authmw.NewTokenValidator(routerSecret, routerIssuer, routerAudience),
		AuthRateLimit:       authLimit,
		Logger:              log,
	})
}

func bearer(t *testing.T, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"roles": roles,
		"iss":   routerIssuer,
		"aud":   routerAudience,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestRouter_DashboardRequiresAdmin(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{name: "anonymous", wantStatus: http.StatusUnauthorized},
		{name: "caretaker", auth: bearer(t, model.RoleUser), wantStatus: http.StatusForbidden},
		{name: "admin reaches the handler", auth: bearer(t, model.RoleAdmin), wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/dashboard/users", strings.NewReader("not json"))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRouter_AuthRoutesAreRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	limit := authmw.RateLimit(rdb, authmw.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
	}, zap.NewNop())
	r := newTestRouter(t, limit)

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{}"))
		req.RemoteAddr = "192.0.2.7:40000"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, login())
	assert.Equal(t, http.StatusBadRequest, login())
	assert.Equal(t, http.StatusTooManyRequests, login())

	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	health.RemoteAddr = "192.0.2.7:40000"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, health)
	assert.Equal(t, http.StatusOK, rec.Code)
}
