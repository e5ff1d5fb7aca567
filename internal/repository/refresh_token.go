package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"roaia/internal/model"
)

type refreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *sqlx.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Create inserts a new refresh token and fills its id
func (r *refreshTokenRepository) Create(ctx context.Context, tx *sqlx.Tx, token *model.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_on, created_on)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := pick(r.db, tx).QueryRowxContext(ctx, query,
		token.UserID,
		token.Token,
		token.ExpiresOn,
		token.CreatedOn,
	).Scan(&token.ID)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// FindByToken retrieves a refresh token by its exact value
func (r *refreshTokenRepository) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_on, created_on, revoked_on, replaced_by
		FROM refresh_tokens
		WHERE token = $1
	`
	var t model.RefreshToken
	err := r.db.GetContext(ctx, &t, query, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	return &t, nil
}

// FindActiveForUser returns the newest active token of a user, or nil.
func (r *refreshTokenRepository) FindActiveForUser(ctx context.Context, userID string, now time.Time) (*model.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_on, created_on, revoked_on, replaced_by
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_on IS NULL AND expires_on > $2
		ORDER BY expires_on DESC
		LIMIT 1
	`
	var t model.RefreshToken
	err := r.db.GetContext(ctx, &t, query, userID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active refresh token: %w", err)
	}
	return &t, nil
}

// Revoke marks a token as revoked and optionally links to its replacement.
// The revoked_on IS NULL guard makes concurrent revocations of one row race-free.
func (r *refreshTokenRepository) Revoke(ctx context.Context, tx *sqlx.Tx, id int64, now time.Time, replacedBy *int64) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_on = $2, replaced_by = COALESCE($3, replaced_by)
		WHERE id = $1 AND revoked_on IS NULL
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, id, now, replacedBy)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return n == 1, nil
}

// DeleteAllForUser removes every token of a user. Only used on account deletion.
func (r *refreshTokenRepository) DeleteAllForUser(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error) {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
