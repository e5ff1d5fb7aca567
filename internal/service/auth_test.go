package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roaia/internal/model"
)

type sessionFixture struct {
	mgr     *SessionManager
	users   *mockUserRepository
	tokens  *memRefreshTokens
	devices *mockDeviceTokens
	clock   time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	alice := &model.User{
		ID:             "user-alice",
		Username:       "alice",
		Email:          "alice@example.com",
		EmailConfirmed: true,
		GlassesID:      strPtr("glasses-1"),
	}

	f := &sessionFixture{
		users: &mockUserRepository{
			getByIDFn: func(ctx context.Context, id string) (*model.User, error) {
				if id == alice.ID {
					u := *alice
					return &u, nil
				}
				return nil, model.ErrUserNotFound
			},
		},
		tokens:  &memRefreshTokens{},
		devices: &mockDeviceTokens{},
		clock:   time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}

	cfg := SessionConfig{
		SigningKey:      []byte("test-signing-key"),
		Issuer:          "roaia-test",
		Audience:        "roaia-clients",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 10 * 24 * time.Hour,
	}
	f.mgr = NewSessionManager(cfg, f.users, f.tokens, f.devices, &fakeTx{}, nil, zap.NewNop())
	f.mgr.now = func() time.Time { return f.clock }
	return f
}

func TestSessionManager_IssueAccessToken_Claims(t *testing.T) {
	f := newSessionFixture(t)
	f.users.rolesFn = func(ctx context.Context, userID string) ([]string, error) {
		return []string{model.RoleUser, model.RoleAdmin}, nil
	}
	f.mgr.now = time.Now

	user := &model.User{ID: "user-alice", Username: "alice", Email: "alice@example.com", GlassesID: strPtr("glasses-1")}
	access, err := f.mgr.IssueAccessToken(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleUser, model.RoleAdmin}, user.Roles)

	parsed, err := jwt.Parse(access.Token, func(tok *jwt.Token) (interface{}, error) {
		return []byte("test-signing-key"), nil
	}, jwt.WithIssuer("roaia-test"), jwt.WithAudience("roaia-clients"), jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "user-alice", claims["sub"])
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, "alice", claims["unique_name"])
	assert.Equal(t, "glasses-1", claims["glasses_id"])
	assert.NotEmpty(t, claims["jti"])
	assert.ElementsMatch(t, []interface{}{"User", "Admin"}, claims["roles"])
}

func TestSessionManager_IssueAccessToken_RolesError(t *testing.T) {
	f := newSessionFixture(t)
	f.users.rolesFn = func(ctx context.Context, userID string) ([]string, error) {
		return nil, errors.New("db down")
	}

	_, err := f.mgr.IssueAccessToken(context.Background(), &model.User{ID: "user-alice"})
	require.Error(t, err)
}

func TestSessionManager_GetOrRotate_IsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	first, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)
	second, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.Len(t, f.tokens.rows, 1)
	assert.Equal(t, f.clock.Add(10*24*time.Hour), first.ExpiresOn)
}

func TestSessionManager_GetOrRotate_MintsAfterExpiry(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	first, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)

	f.clock = f.clock.Add(11 * 24 * time.Hour)
	second, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Len(t, f.tokens.rows, 2)
}

func TestSessionManager_Refresh_RotatesOnUse(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	issued, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)

	result, err := f.mgr.Refresh(ctx, issued.Token)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, result.RefreshToken)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "user-alice", result.UserID)

	old := f.tokens.get(issued.Token)
	require.NotNil(t, old)
	assert.True(t, old.IsRevoked())

	replacement := f.tokens.get(result.RefreshToken)
	require.NotNil(t, replacement)
	assert.True(t, replacement.IsActive(f.clock))
	assert.Equal(t, "user-alice", replacement.UserID)
	require.NotNil(t, old.ReplacedBy)
	assert.Equal(t, replacement.ID, *old.ReplacedBy)

	_, err = f.mgr.Refresh(ctx, issued.Token)
	assert.ErrorIs(t, err, model.ErrInactiveToken)
}

func TestSessionManager_Refresh_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *sessionFixture) string
		wantErr error
	}{
		{
			name:    "unknown token",
			setup:   func(f *sessionFixture) string { return "nope" },
			wantErr: model.ErrInvalidToken,
		},
		{
			name: "owner deleted",
			setup: func(f *sessionFixture) string {
				tok := &model.RefreshToken{UserID: "ghost", Token: "ghost-token", ExpiresOn: f.clock.Add(time.Hour)}
				_ = f.tokens.Create(context.Background(), nil, tok)
				return tok.Token
			},
			wantErr: model.ErrInvalidToken,
		},
		{
			name: "expired",
			setup: func(f *sessionFixture) string {
				tok := &model.RefreshToken{UserID: "user-alice", Token: "old", ExpiresOn: f.clock.Add(-time.Minute)}
				_ = f.tokens.Create(context.Background(), nil, tok)
				return tok.Token
			},
			wantErr: model.ErrInactiveToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			token := tt.setup(f)

			_, err := f.mgr.Refresh(context.Background(), token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSessionManager_Refresh_ConcurrentUseWinsOnce(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	issued, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		inactive int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.Refresh(ctx, issued.Token)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrInactiveToken):
				inactive++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, inactive)
}

func TestSessionManager_Revoke(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	issued, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)

	revoked, err := f.mgr.Revoke(ctx, issued.Token, strPtr("device-1"))
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, []string{"device-1"}, f.devices.deletedOwned)

	revoked, err = f.mgr.Revoke(ctx, issued.Token, nil)
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = f.mgr.Revoke(ctx, "unknown", nil)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestSessionManager_AliceScenario(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	loginAt := f.clock

	r1, err := f.mgr.GetOrRotateRefreshToken(ctx, "user-alice")
	require.NoError(t, err)
	assert.Equal(t, loginAt.Add(10*24*time.Hour), r1.ExpiresOn)

	f.clock = loginAt.Add(2 * 24 * time.Hour)
	result, err := f.mgr.Refresh(ctx, r1.Token)
	require.NoError(t, err)
	assert.True(t, f.tokens.get(r1.Token).IsRevoked())

	r2 := f.tokens.get(result.RefreshToken)
	require.NotNil(t, r2)
	assert.True(t, r2.IsActive(f.clock))
	assert.Equal(t, f.clock.Add(10*24*time.Hour), r2.ExpiresOn)
	assert.Equal(t, r2.ExpiresOn, result.RefreshTokenExpiresOn)

	revoked, err := f.mgr.Revoke(ctx, r1.Token, nil)
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = f.mgr.Revoke(ctx, r2.Token, nil)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, f.tokens.get(r2.Token).IsRevoked())
}
