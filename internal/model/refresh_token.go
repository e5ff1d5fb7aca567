package model

import (
	"errors"
	"time"
)

// RefreshToken is an opaque long-lived credential. Rows are never deleted while
// the owner exists; revocation only stamps RevokedOn.
type RefreshToken struct {
	ID         int64      `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Token      string     `db:"token" json:"-"`
	ExpiresOn  time.Time  `db:"expires_on" json:"expires_on"`
	CreatedOn  time.Time  `db:"created_on" json:"created_on"`
	RevokedOn  *time.Time `db:"revoked_on" json:"revoked_on,omitempty"`
	ReplacedBy *int64     `db:"replaced_by" json:"replaced_by,omitempty"`
}

// IsActive reports whether the token is neither revoked nor expired at now.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedOn == nil && now.Before(t.ExpiresOn)
}

// IsRevoked returns true if the token has been revoked
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedOn != nil
}

// IsExpired returns true if the token has expired at now
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresOn)
}

var (
	// ErrInvalidToken means no identity owns the presented refresh token.
	ErrInvalidToken = errors.New("invalid refresh token")
	// ErrInactiveToken means the token exists but is revoked or expired.
	ErrInactiveToken = errors.New("inactive refresh token")
)

// Token API error codes (used in HTTP responses)
const (
	CodeTokenExpired  = "TOKEN_EXPIRED"
	CodeTokenInvalid  = "TOKEN_INVALID"
	CodeTokenInactive = "TOKEN_INACTIVE"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token     string    `json:"token"`
	ExpiresOn time.Time `json:"expires_on"`
}

// AuthResult is returned after register, login and refresh.
type AuthResult struct {
	UserID                string    `json:"user_id"`
	Username              string    `json:"username"`
	Email                 string    `json:"email"`
	GlassesID             *string   `json:"glasses_id,omitempty"`
	Roles                 []string  `json:"roles"`
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresOn  time.Time `json:"access_token_expires_on"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresOn time.Time `json:"refresh_token_expires_on"`
}

// RefreshRequest is the request body for POST /api/auth/refresh-token.
// The token may also arrive in the refreshToken cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RevokeRequest is the request body for POST /api/auth/revoke-token.
type RevokeRequest struct {
	RefreshToken string  `json:"refresh_token"`
	DeviceToken  *string `json:"device_token,omitempty"`
}
