package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type deviceTokenRepository struct {
	db *sqlx.DB
}

func NewDeviceTokenRepository(db *sqlx.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// CreateIfNotExists registers a device token the first time it is seen.
// An existing token keeps its original owner.
func (r *deviceTokenRepository) CreateIfNotExists(ctx context.Context, token string, glassesID *string, userID string) (bool, error) {
	query := `
		INSERT INTO device_tokens (token, glasses_id, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, token, glassesID, userID)
	if err != nil {
		return false, fmt.Errorf("insert device token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert device token: %w", err)
	}
	return n == 1, nil
}

// TokensByGlasses returns all non-empty tokens for a profile.
func (r *deviceTokenRepository) TokensByGlasses(ctx context.Context, glassesID string) ([]string, error) {
	query := `
		SELECT token
		FROM device_tokens
		WHERE glasses_id = $1 AND token <> ''
		ORDER BY id
	`
	var tokens []string
	err := r.db.SelectContext(ctx, &tokens, query, glassesID)
	if err != nil {
		return nil, fmt.Errorf("get device tokens: %w", err)
	}
	return tokens, nil
}

// DeleteByTokens removes the given tokens in one statement.
func (r *deviceTokenRepository) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = ANY($1)`, pq.Array(tokens))
	if err != nil {
		return 0, fmt.Errorf("delete device tokens: %w", err)
	}
	return res.RowsAffected()
}

// DeleteForUser removes a token only if it was registered by userID.
func (r *deviceTokenRepository) DeleteForUser(ctx context.Context, token, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE token = $1 AND user_id = $2`, token, userID)
	if err != nil {
		return false, fmt.Errorf("delete device token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete device token: %w", err)
	}
	return n > 0, nil
}

func (r *deviceTokenRepository) DeleteAllForUser(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error) {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user device tokens: %w", err)
	}
	return res.RowsAffected()
}
