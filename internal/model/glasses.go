package model

import (
	"errors"
	"time"
)

// DefaultFreeContactQuota is the contact limit of the free plan.
const DefaultFreeContactQuota = 7

// GlassesIDLength is the length of generated glasses identifiers.
const GlassesIDLength = 30

const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// Glasses is the device wearer profile. Caretakers reference it by ID and
// it owns contacts, diseases, delivery endpoints and notifications.
type Glasses struct {
	ID                    string     `db:"id" json:"id"`
	FullName              *string    `db:"full_name" json:"full_name,omitempty"`
	Age                   *int       `db:"age" json:"age,omitempty"`
	Gender                *string    `db:"gender" json:"gender,omitempty"`
	ImageURL              *string    `db:"image_url" json:"image_url,omitempty"`
	ImageKey              *string    `db:"image_key" json:"-"`
	MaxContacts           int        `db:"max_contacts" json:"max_contacts"`
	SubscriptionExpiresAt *time.Time `db:"subscription_expires_at" json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`

	Diseases []string `db:"-" json:"diseases"`
}

// SubscriptionExpired reports whether a paid plan has lapsed at now.
func (g *Glasses) SubscriptionExpired(now time.Time) bool {
	return g.SubscriptionExpiresAt != nil && g.SubscriptionExpiresAt.Before(now)
}

// DisplayName is the name used when templating notifications.
func (g *Glasses) DisplayName() string {
	if g.FullName != nil && *g.FullName != "" {
		return *g.FullName
	}
	return ""
}

// ModifyGlassesRequest updates the wearer profile. Diseases replaces the
// whole set; nil leaves it unchanged.
type ModifyGlassesRequest struct {
	FullName *string  `json:"full_name"`
	Age      *int     `json:"age"`
	Gender   *string  `json:"gender"`
	Diseases []string `json:"diseases"`
	ImageURL *string  `json:"-"`
	ImageKey *string  `json:"-"`
}

// SetSubscriptionRequest is the admin payload for plan changes.
type SetSubscriptionRequest struct {
	MaxContacts int        `json:"max_contacts"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

var (
	ErrGlassesNotFound = errors.New("glasses not found")
	ErrInvalidGender   = errors.New("gender must be Male or Female")
	ErrInvalidAge      = errors.New("age must be between 10 and 100")
	ErrInvalidQuota    = errors.New("max contacts must be positive")
)
