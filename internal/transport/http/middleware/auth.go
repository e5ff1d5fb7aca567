package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"roaia/internal/httputil"
	"roaia/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDKey is the context key for the authenticated user's ID
	UserIDKey contextKey = "user_id"
	// RolesKey holds the role labels from the access token
	RolesKey contextKey = "roles"
	// GlassesIDKey holds the glasses linked to the caller, if any
	GlassesIDKey contextKey = "glasses_id"
)

// TokenValidator checks HS256 access tokens issued by the session manager.
type TokenValidator struct {
	key    []byte
	parser *jwt.Parser
}

func NewTokenValidator(secret, issuer, audience string) *TokenValidator {
	return &TokenValidator{
		key: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
		),
	}
}

// Identity is what the middleware extracts from a valid token.
type Identity struct {
	UserID    string
	Roles     []string
	GlassesID string
}

// Validate parses tokenString and returns the caller identity.
func (v *TokenValidator) Validate(tokenString string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	id := &Identity{UserID: sub, Roles: []string{}}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	}
	if g, ok := claims["glasses_id"].(string); ok {
		id.GlassesID = g
	}
	return id, nil
}

// AuthMiddleware creates a middleware that validates JWT tokens
// Checks Authorization header first (for mobile), then falls back to cookie (for web)
func AuthMiddleware(v *TokenValidator) func(http.Handler) http.Handler {
	return authenticate(v, false)
}

// HubAuthMiddleware also accepts the token in the access_token query
// parameter, since browsers cannot set headers on a WebSocket upgrade.
func HubAuthMiddleware(v *TokenValidator) func(http.Handler) http.Handler {
	return authenticate(v, true)
}

func authenticate(v *TokenValidator, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r, allowQuery)
			if tokenString == "" {
				httputil.WriteUnauthorized(w, "Missing authentication token")
				return
			}

			id, err := v.Validate(tokenString)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					httputil.WriteUnauthorizedWithCode(w, model.CodeTokenExpired, "Access token has expired")
					return
				}
				httputil.WriteUnauthorizedWithCode(w, model.CodeTokenInvalid, "Invalid authentication token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, id.UserID)
			ctx = context.WithValue(ctx, RolesKey, id.Roles)
			ctx = context.WithValue(ctx, GlassesIDKey, id.GlassesID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request, allowQuery bool) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if allowQuery {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

// RequireRole rejects callers holding none of roles.
// Must run after AuthMiddleware.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasAnyRole(r.Context(), roles...) {
				httputil.WriteForbidden(w, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUserIDFromContext extracts the user ID from the request context
// Returns the user ID and true if found, or "" and false if not found
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func GetRolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(RolesKey).([]string)
	return roles
}

func GetGlassesIDFromContext(ctx context.Context) string {
	g, _ := ctx.Value(GlassesIDKey).(string)
	return g
}

func HasAnyRole(ctx context.Context, roles ...string) bool {
	held := GetRolesFromContext(ctx)
	for _, r := range roles {
		if slices.Contains(held, r) {
			return true
		}
	}
	return false
}

// CanAccessGlasses reports whether the caller is linked to glassesID or is an admin.
func CanAccessGlasses(ctx context.Context, glassesID string) bool {
	if glassesID != "" && GetGlassesIDFromContext(ctx) == glassesID {
		return true
	}
	return HasAnyRole(ctx, model.RoleAdmin, model.RoleSuperAdmin)
}
