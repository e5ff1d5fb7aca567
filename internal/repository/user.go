package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"roaia/internal/model"
)

const userColumns = `id, first_name, last_name, username, email, phone_number, password_hash,
	email_confirmed, glasses_id, image_url, image_key, is_agree, otp_code, otp_expires_at,
	otp_attempts, access_failed_count, lockout_end, is_deleted, is_subscribed,
	created_at, updated_at`

// userRepository implements UserRepository using sqlx
type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, tx *sqlx.Tx, u *model.User) error {
	query := `
		INSERT INTO users (id, first_name, last_name, username, email, phone_number, password_hash,
			email_confirmed, glasses_id, image_url, image_key, is_agree, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		RETURNING created_at
	`
	err := pick(r.db, tx).QueryRowxContext(ctx, query,
		u.ID,
		u.FirstName,
		u.LastName,
		u.Username,
		u.Email,
		u.PhoneNumber,
		u.PasswordHash,
		u.EmailConfirmed,
		u.GlassesID,
		u.ImageURL,
		u.ImageKey,
		u.IsAgree,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.ErrUsernameExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var u model.User
	err := r.db.GetContext(ctx, &u, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return &u, nil
}

func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE (LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1) OR phone_number = $1)
			AND NOT is_deleted
		LIMIT 1`

	var u model.User
	err := r.db.GetContext(ctx, &u, query, identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by identifier: %w", err)
	}

	return &u, nil
}

func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER($1))`, username)
}

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email)
}

func (r *userRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE phone_number = $1)`, phone)
}

func (r *userRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, arg); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// Update writes the editable profile fields.
func (r *userRepository) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET first_name = $2, last_name = $3, username = $4, phone_number = $5,
			image_url = $6, image_key = $7, email = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		u.ID, u.FirstName, u.LastName, u.Username, u.PhoneNumber, u.ImageURL, u.ImageKey, u.Email,
	).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrUserNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return model.ErrUsernameExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, "update password", userID, passwordHash)
}

// SetOTP stores or clears (nil code) the one-time password and restarts the attempt count.
func (r *userRepository) SetOTP(ctx context.Context, userID string, code *string, expiresAt *time.Time) error {
	query := `UPDATE users SET otp_code = $2, otp_expires_at = $3, otp_attempts = 0 WHERE id = $1`
	return r.execOne(ctx, query, "set otp", userID, code, expiresAt)
}

func (r *userRepository) ConfirmEmail(ctx context.Context, userID string) error {
	query := `UPDATE users SET email_confirmed = TRUE, otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0
		WHERE id = $1`
	return r.execOne(ctx, query, "confirm email", userID)
}

// RecordOTPFailure counts a wrong code and discards the OTP once the count
// reaches maxAttempts. It returns the new count.
func (r *userRepository) RecordOTPFailure(ctx context.Context, userID string, maxAttempts int) (int, error) {
	query := `
		UPDATE users
		SET otp_attempts = otp_attempts + 1,
			otp_code = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_code END,
			otp_expires_at = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_expires_at END
		WHERE id = $1
		RETURNING otp_attempts
	`
	var attempts int
	if err := r.db.GetContext(ctx, &attempts, query, userID, maxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, model.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to record otp failure: %w", err)
	}
	return attempts, nil
}

// RecordLoginFailure counts a wrong password. When the count reaches
// maxAttempts it is reset and the account is locked until lockUntil.
// It returns the resulting lockout end, nil when the account is not locked.
func (r *userRepository) RecordLoginFailure(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*time.Time, error) {
	query := `
		UPDATE users
		SET access_failed_count = CASE WHEN access_failed_count + 1 >= $2 THEN 0 ELSE access_failed_count + 1 END,
			lockout_end = CASE WHEN access_failed_count + 1 >= $2 THEN $3 ELSE lockout_end END
		WHERE id = $1
		RETURNING lockout_end
	`
	var lockoutEnd *time.Time
	if err := r.db.GetContext(ctx, &lockoutEnd, query, userID, maxAttempts, lockUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	return lockoutEnd, nil
}

// ClearLockout resets the failure count and lifts any lockout.
func (r *userRepository) ClearLockout(ctx context.Context, userID string) error {
	query := `UPDATE users SET access_failed_count = 0, lockout_end = NULL WHERE id = $1`
	return r.execOne(ctx, query, "clear lockout", userID)
}

// ToggleDeleted flips the deactivation flag and returns the new state.
func (r *userRepository) ToggleDeleted(ctx context.Context, userID string) (*model.StatusResult, error) {
	query := `
		UPDATE users SET is_deleted = NOT is_deleted, updated_at = NOW()
		WHERE id = $1
		RETURNING id AS user_id, is_deleted, updated_at
	`
	var res struct {
		UserID    string    `db:"user_id"`
		IsDeleted bool      `db:"is_deleted"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := r.db.GetContext(ctx, &res, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to toggle user status: %w", err)
	}
	return &model.StatusResult{UserID: res.UserID, IsDeleted: res.IsDeleted, UpdatedAt: res.UpdatedAt}, nil
}

// SetSubscribedByEmail updates the newsletter flag of the account owning email.
func (r *userRepository) SetSubscribedByEmail(ctx context.Context, email string, subscribed bool) error {
	query := `UPDATE users SET is_subscribed = $2 WHERE LOWER(email) = LOWER($1) AND NOT is_deleted`
	return r.execOne(ctx, query, "set subscription", email, subscribed)
}

// ListSubscribedEmails returns the addresses of active, confirmed, subscribed accounts.
func (r *userRepository) ListSubscribedEmails(ctx context.Context) ([]string, error) {
	query := `SELECT email FROM users WHERE is_subscribed AND email_confirmed AND NOT is_deleted ORDER BY created_at, id`

	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query); err != nil {
		return nil, fmt.Errorf("failed to list subscribed emails: %w", err)
	}
	return emails, nil
}

func (r *userRepository) execOne(ctx context.Context, query, op string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`

	var users []model.User
	if err := r.db.SelectContext(ctx, &users, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Delete hard-deletes the user row. Roles cascade through the foreign key.
func (r *userRepository) Delete(ctx context.Context, tx *sqlx.Tx, userID string) error {
	res, err := pick(r.db, tx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	var roles []string
	err := r.db.SelectContext(ctx, &roles, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	return roles, nil
}

func (r *userRepository) AddRole(ctx context.Context, tx *sqlx.Tx, userID, role string) error {
	query := `
		INSERT INTO user_roles (user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	if n == 0 {
		return model.ErrRoleAlreadyGranted
	}
	return nil
}

// ReplaceRoles swaps the user's role set for roles.
func (r *userRepository) ReplaceRoles(ctx context.Context, tx *sqlx.Tx, userID string, roles []string) error {
	db := pick(r.db, tx)
	if _, err := db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	if len(roles) == 0 {
		return nil
	}
	query := `
		INSERT INTO user_roles (user_id, role)
		SELECT $1, UNNEST($2::text[])
		ON CONFLICT (user_id, role) DO NOTHING
	`
	if _, err := db.ExecContext(ctx, query, userID, pq.Array(roles)); err != nil {
		return fmt.Errorf("failed to insert roles: %w", err)
	}
	return nil
}
