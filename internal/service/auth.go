package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"roaia/internal/config"
	"roaia/internal/metrics"
	"roaia/internal/model"
	"roaia/internal/repository"
)

// refreshTokenBytes is the entropy of an opaque refresh token before encoding.
const refreshTokenBytes = 32

// SessionConfig holds the signing key and token lifetimes.
type SessionConfig struct {
	SigningKey      []byte
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// NewSessionConfig derives the session settings from the loaded configuration.
func NewSessionConfig(cfg *config.Config) SessionConfig {
	return SessionConfig{
		SigningKey:      []byte(cfg.JWTSecret),
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
		AccessTokenTTL:  cfg.AccessTokenTTL(),
		RefreshTokenTTL: cfg.RefreshTokenTTL(),
	}
}

// SessionManager issues access tokens and manages the refresh token lifecycle
// with rotation on use.
type SessionManager struct {
	cfg     SessionConfig
	users   repository.UserRepository
	tokens  repository.RefreshTokenRepository
	devices repository.DeviceTokenRepository
	tx      repository.Transactor
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewSessionManager(
	cfg SessionConfig,
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	devices repository.DeviceTokenRepository,
	tx repository.Transactor,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		cfg:     cfg,
		users:   users,
		tokens:  tokens,
		devices: devices,
		tx:      tx,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// IssueAccessToken signs a JWT for user. Roles are read on every call so
// role changes show up on the next issuance.
func (s *SessionManager) IssueAccessToken(ctx context.Context, user *model.User) (*model.AccessToken, error) {
	roles, err := s.users.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	user.Roles = roles

	now := s.now()
	expiresOn := now.Add(s.cfg.AccessTokenTTL)
	claims := jwt.MapClaims{
		"sub":         user.ID,
		"email":       user.Email,
		"unique_name": user.Username,
		"jti":         uuid.NewString(),
		"roles":       roles,
		"iss":         s.cfg.Issuer,
		"aud":         s.cfg.Audience,
		"iat":         now.Unix(),
		"exp":         expiresOn.Unix(),
	}
	if user.GlassesID != nil {
		claims["glasses_id"] = *user.GlassesID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &model.AccessToken{Token: signed, ExpiresOn: expiresOn}, nil
}

// GetOrRotateRefreshToken returns the user's active refresh token unchanged,
// minting a new one only when none is active.
func (s *SessionManager) GetOrRotateRefreshToken(ctx context.Context, userID string) (*model.RefreshToken, error) {
	now := s.now()
	active, err := s.tokens.FindActiveForUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		s.metrics.Session(metrics.SessionReused)
		return active, nil
	}

	token, err := s.newRefreshToken(userID, now)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, nil, token); err != nil {
		return nil, err
	}

	s.metrics.Session(metrics.SessionIssued)
	s.logger.Info("[Session] Refresh token issued", zap.String("user_id", userID), zap.Int64("token_id", token.ID))
	return token, nil
}

// Refresh redeems a refresh token: the presented token is revoked and replaced
// in one transaction and a fresh access token is issued.
func (s *SessionManager) Refresh(ctx context.Context, tokenString string) (*model.AuthResult, error) {
	current, err := s.tokens.FindByToken(ctx, tokenString)
	if err != nil {
		if errors.Is(err, model.ErrInvalidToken) {
			s.metrics.Session(metrics.SessionRejected)
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			s.metrics.Session(metrics.SessionRejected)
			return nil, model.ErrInvalidToken
		}
		return nil, err
	}

	now := s.now()
	if !current.IsActive(now) {
		s.metrics.Session(metrics.SessionRejected)
		return nil, model.ErrInactiveToken
	}

	replacement, err := s.newRefreshToken(user.ID, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.tokens.Create(ctx, tx, replacement); err != nil {
			return err
		}
		revoked, err := s.tokens.Revoke(ctx, tx, current.ID, now, &replacement.ID)
		if err != nil {
			return err
		}
		if !revoked {
			// A concurrent refresh consumed the token first.
			return model.ErrInactiveToken
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrInactiveToken) {
			s.metrics.Session(metrics.SessionRejected)
		}
		return nil, err
	}

	access, err := s.IssueAccessToken(ctx, user)
	if err != nil {
		return nil, err
	}

	s.metrics.Session(metrics.SessionRotated)
	s.logger.Info("[Session] Refresh token rotated",
		zap.String("user_id", user.ID),
		zap.Int64("old_token_id", current.ID),
		zap.Int64("new_token_id", replacement.ID),
	)
	return buildAuthResult(user, access, replacement), nil
}

// Revoke revokes an active refresh token. It returns false without error when
// the token is unknown or already inactive. When deviceToken is given it is
// deregistered too, but only if it belongs to the token's owner.
func (s *SessionManager) Revoke(ctx context.Context, tokenString string, deviceToken *string) (bool, error) {
	current, err := s.tokens.FindByToken(ctx, tokenString)
	if err != nil {
		if errors.Is(err, model.ErrInvalidToken) {
			return false, nil
		}
		return false, err
	}

	now := s.now()
	if !current.IsActive(now) {
		return false, nil
	}

	revoked, err := s.tokens.Revoke(ctx, nil, current.ID, now, nil)
	if err != nil {
		return false, err
	}
	if !revoked {
		return false, nil
	}
	s.metrics.Session(metrics.SessionRevoked)

	if deviceToken != nil && *deviceToken != "" {
		removed, err := s.devices.DeleteForUser(ctx, *deviceToken, current.UserID)
		if err != nil {
			return true, fmt.Errorf("remove device token: %w", err)
		}
		s.logger.Info("[Session] Device token deregistered",
			zap.String("user_id", current.UserID),
			zap.Bool("removed", removed),
		)
	}

	return true, nil
}

func (s *SessionManager) newRefreshToken(userID string, now time.Time) (*model.RefreshToken, error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &model.RefreshToken{
		UserID:    userID,
		Token:     base64.StdEncoding.EncodeToString(raw),
		CreatedOn: now,
		ExpiresOn: now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}

func buildAuthResult(user *model.User, access *model.AccessToken, refresh *model.RefreshToken) *model.AuthResult {
	return &model.AuthResult{
		UserID:                user.ID,
		Username:              user.Username,
		Email:                 user.Email,
		GlassesID:             user.GlassesID,
		Roles:                 user.Roles,
		AccessToken:           access.Token,
		AccessTokenExpiresOn:  access.ExpiresOn,
		RefreshToken:          refresh.Token,
		RefreshTokenExpiresOn: refresh.ExpiresOn,
	}
}
