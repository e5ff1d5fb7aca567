package model

import (
	"errors"
	"fmt"
	"time"
)

// Category is the severity tag of a notification. The set is closed.
type Category string

const (
	CategoryNormal   Category = "Normal"
	CategoryWarning  Category = "Warning"
	CategoryCritical Category = "Critical"
)

// Categories lists every valid category.
var Categories = []Category{CategoryNormal, CategoryWarning, CategoryCritical}

// ParseCategory converts a wire value into a Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

// Notification is a persisted record of a delivered push message.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	GlassesID string    `db:"glasses_id" json:"glasses_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	ImageURL  *string   `db:"image_url" json:"image_url,omitempty"`
	AudioURL  *string   `db:"audio_url" json:"audio_url,omitempty"`
	Category  Category  `db:"category" json:"category"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SendNotificationRequest is the input to a push fan-out.
type SendNotificationRequest struct {
	GlassesID string   `json:"glasses_id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	ImageURL  *string  `json:"image_url,omitempty"`
	AudioURL  *string  `json:"audio_url,omitempty"`
	Category  Category `json:"category"`
}

// SendOutcome classifies a completed send.
type SendOutcome string

const (
	// OutcomeNoEndpoints: the profile has no registered devices; nothing was sent.
	OutcomeNoEndpoints SendOutcome = "no_endpoints"
	// OutcomeDelivered: every endpoint accepted the message.
	OutcomeDelivered SendOutcome = "delivered"
	// OutcomePartiallyDelivered: some endpoints failed and were pruned.
	OutcomePartiallyDelivered SendOutcome = "partially_delivered"
	// OutcomeUndelivered: every endpoint failed; no record was persisted.
	OutcomeUndelivered SendOutcome = "undelivered"
)

// SendResult describes the result of a push fan-out.
type SendResult struct {
	Outcome      SendOutcome   `json:"outcome"`
	Notification *Notification `json:"notification,omitempty"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	PrunedCount  int           `json:"pruned_count"`
	Message      string        `json:"message"`
}

// ListNotificationsResponse is the notification list for one profile.
type ListNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// InvalidURLError names the request field holding a malformed URL.
type InvalidURLError struct {
	Field string
	Value string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid %s: %q is not an absolute url", e.Field, e.Value)
}

func (e *InvalidURLError) Is(target error) bool {
	return target == ErrInvalidURL
}

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidURL           = errors.New("invalid url")
	ErrInvalidCategory      = errors.New("invalid notification category")
	ErrTitleRequired        = errors.New("title is required")
	ErrBodyRequired         = errors.New("body is required")
)

// Error codes for HTTP responses
const (
	CodeInvalidURL      = "INVALID_URL"
	CodeInvalidCategory = "INVALID_CATEGORY"
	CodeQuotaExceeded   = "QUOTA_EXCEEDED"
)
