package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"roaia/internal/model"
)

// Methods taking a *sqlx.Tx run inside it when non-nil and on the pool otherwise.

type Transactor interface {
	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type UserRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByIdentifier matches username or email case-insensitively, or phone exactly.
	GetByIdentifier(ctx context.Context, identifier string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	Update(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetOTP(ctx context.Context, userID string, code *string, expiresAt *time.Time) error
	ConfirmEmail(ctx context.Context, userID string) error
	// RecordOTPFailure returns the attempt count; the code is cleared at maxAttempts.
	RecordOTPFailure(ctx context.Context, userID string, maxAttempts int) (int, error)
	// RecordLoginFailure returns the lockout end, set once maxAttempts is reached.
	RecordLoginFailure(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*time.Time, error)
	ClearLockout(ctx context.Context, userID string) error
	ToggleDeleted(ctx context.Context, userID string) (*model.StatusResult, error)
	SetSubscribedByEmail(ctx context.Context, email string, subscribed bool) error
	ListSubscribedEmails(ctx context.Context) ([]string, error)
	List(ctx context.Context, limit, offset int) ([]model.User, error)
	Delete(ctx context.Context, tx *sqlx.Tx, userID string) error
	GetRoles(ctx context.Context, userID string) ([]string, error)
	// AddRole returns model.ErrRoleAlreadyGranted when the pair already exists.
	AddRole(ctx context.Context, tx *sqlx.Tx, userID, role string) error
	ReplaceRoles(ctx context.Context, tx *sqlx.Tx, userID string, roles []string) error
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, token *model.RefreshToken) error
	// FindByToken returns model.ErrInvalidToken when no row matches exactly.
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	// FindActiveForUser returns nil, nil when the user has no active token.
	FindActiveForUser(ctx context.Context, userID string, now time.Time) (*model.RefreshToken, error)
	// Revoke stamps revoked_on only if the row is still unrevoked and reports
	// whether this call performed the transition.
	Revoke(ctx context.Context, tx *sqlx.Tx, id int64, now time.Time, replacedBy *int64) (bool, error)
	DeleteAllForUser(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error)
}

type DeviceTokenRepository interface {
	// CreateIfNotExists registers a token once; it reports whether a row was inserted.
	CreateIfNotExists(ctx context.Context, token string, glassesID *string, userID string) (bool, error)
	// TokensByGlasses returns non-empty token strings for a profile in id order.
	TokensByGlasses(ctx context.Context, glassesID string) ([]string, error)
	DeleteByTokens(ctx context.Context, tokens []string) (int64, error)
	// DeleteForUser removes token only when it belongs to userID.
	DeleteForUser(ctx context.Context, token, userID string) (bool, error)
	DeleteAllForUser(ctx context.Context, tx *sqlx.Tx, userID string) (int64, error)
}

type GlassesRepository interface {
	Create(ctx context.Context, glasses *model.Glasses) error
	// GetByID loads the profile together with its disease names.
	GetByID(ctx context.Context, id string) (*model.Glasses, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, tx *sqlx.Tx, glasses *model.Glasses) error
	Diseases(ctx context.Context, tx *sqlx.Tx, id string) ([]string, error)
	AddDiseases(ctx context.Context, tx *sqlx.Tx, id string, names []string) error
	RemoveDiseases(ctx context.Context, tx *sqlx.Tx, id string, names []string) error
	// LockForUpdate reads the row with SELECT ... FOR UPDATE.
	LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Glasses, error)
	SetPlan(ctx context.Context, tx *sqlx.Tx, id string, maxContacts int, expiresAt *time.Time) error
}

type ContactRepository interface {
	CountActive(ctx context.Context, tx *sqlx.Tx, glassesID string) (int, error)
	ListActive(ctx context.Context, glassesID string) ([]model.Contact, error)
	ListImages(ctx context.Context, glassesID string) ([]model.ContactImage, error)
	GetActive(ctx context.Context, glassesID string, id int64) (*model.Contact, error)
	Create(ctx context.Context, tx *sqlx.Tx, contact *model.Contact) error
	Update(ctx context.Context, contact *model.Contact) error
	SoftDelete(ctx context.Context, glassesID string, id int64) error
	// SoftDeleteOverflow keeps the first keep active contacts by id and flags the rest.
	SoftDeleteOverflow(ctx context.Context, tx *sqlx.Tx, glassesID string, keep int) (int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	// ListByGlasses orders newest first with ascending id as tie-break.
	ListByGlasses(ctx context.Context, glassesID string) ([]model.Notification, error)
	GetByID(ctx context.Context, glassesID string, id int64) (*model.Notification, error)
	Delete(ctx context.Context, glassesID string, id int64) error
	DeleteAllByGlasses(ctx context.Context, glassesID string) (int64, error)
	// ToggleRead flips is_read and returns the new value.
	ToggleRead(ctx context.Context, glassesID string, id int64) (bool, error)
	MarkAllRead(ctx context.Context, glassesID string) (int64, error)
	UnreadCount(ctx context.Context, glassesID string) (int, error)
}
