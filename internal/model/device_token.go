package model

import (
	"time"
)

// DeviceToken is a push delivery endpoint registered by an app install.
// UserID is nullable: the endpoint can outlive the identity that registered it.
type DeviceToken struct {
	ID        int64      `db:"id" json:"id"`
	Token     string     `db:"token" json:"-"`
	GlassesID *string    `db:"glasses_id" json:"glasses_id,omitempty"`
	UserID    *string    `db:"user_id" json:"-"`
	CreatedOn time.Time  `db:"created_on" json:"created_on"`
	UpdatedOn *time.Time `db:"updated_on" json:"updated_on,omitempty"`
}
