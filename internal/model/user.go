package model

import (
	"errors"
	"time"
)

// Role labels carried in the access token "roles" claim.
const (
	RoleSuperAdmin = "SuperAdmin"
	RoleAdmin      = "Admin"
	RoleUser       = "User"
)

var knownRoles = map[string]struct{}{
	RoleSuperAdmin: {},
	RoleAdmin:      {},
	RoleUser:       {},
}

// IsKnownRole reports whether role is one of the supported role labels.
func IsKnownRole(role string) bool {
	_, ok := knownRoles[role]
	return ok
}

// User is an authenticated account (caretaker or administrator).
type User struct {
	ID                string     `db:"id" json:"id"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	Username          string     `db:"username" json:"username"`
	Email             string     `db:"email" json:"email"`
	PhoneNumber       *string    `db:"phone_number" json:"phone_number,omitempty"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	EmailConfirmed    bool       `db:"email_confirmed" json:"email_confirmed"`
	GlassesID         *string    `db:"glasses_id" json:"glasses_id,omitempty"`
	ImageURL          *string    `db:"image_url" json:"image_url,omitempty"`
	ImageKey          *string    `db:"image_key" json:"-"`
	IsAgree           bool       `db:"is_agree" json:"-"`
	OTPCode           *string    `db:"otp_code" json:"-"`
	OTPExpiresAt      *time.Time `db:"otp_expires_at" json:"-"`
	OTPAttempts       int        `db:"otp_attempts" json:"-"`
	AccessFailedCount int        `db:"access_failed_count" json:"-"`
	LockoutEnd        *time.Time `db:"lockout_end" json:"lockout_end,omitempty"`
	IsDeleted         bool       `db:"is_deleted" json:"is_deleted"`
	IsSubscribed      bool       `db:"is_subscribed" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`

	Roles []string `db:"-" json:"roles,omitempty"`
}

// RegisterRequest carries sign-up data. ImageURL/ImageKey are filled by the handler after upload.
type RegisterRequest struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	PhoneNumber *string `json:"phone_number"`
	GlassesID   string  `json:"glasses_id"`
	IsAgree     bool    `json:"is_agree"`
	ImageURL    *string `json:"-"`
	ImageKey    *string `json:"-"`
}

// LoginRequest authenticates with an email, username or phone number.
type LoginRequest struct {
	Identifier  string  `json:"identifier"`
	Password    string  `json:"password"`
	DeviceToken *string `json:"device_token,omitempty"`
}

// ModifyUserRequest updates profile fields; nil means unchanged.
type ModifyUserRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Username    *string `json:"username"`
	PhoneNumber *string `json:"phone_number"`
	ImageURL    *string `json:"-"`
	ImageKey    *string `json:"-"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type SendOTPRequest struct {
	Email string `json:"email"`
}

type VerifyOTPRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otp_code"`
}

type ResetPasswordRequest struct {
	Email           string `json:"email"`
	OTPCode         string `json:"otp_code"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type AddRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// CreateUserRequest is the dashboard form for accounts created by an administrator.
// Such accounts are confirmed and have no glasses.
type CreateUserRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Roles     []string `json:"roles"`
}

// EditUserRequest replaces the profile fields and, when Roles is non-nil, the role set.
type EditUserRequest struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
}

type AdminResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// MailNewsRequest is a newsletter sent to every subscribed account.
type MailNewsRequest struct {
	Subject     string `json:"subject"`
	HTMLMessage string `json:"html_message"`
}

type MailNewsResult struct {
	Recipients int `json:"recipients"`
}

// StatusResult reports the account state after a dashboard toggle.
type StatusResult struct {
	UserID    string    `json:"user_id"`
	IsDeleted bool      `json:"is_deleted"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserInfo is the caretaker view returned by the account endpoints.
type UserInfo struct {
	ID          string   `json:"id"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	GlassesID   *string  `json:"glasses_id,omitempty"`
	ImageURL    *string  `json:"image_url,omitempty"`
	PhoneNumber *string    `json:"phone_number,omitempty"`
	IsDeleted   bool       `json:"is_deleted"`
	LockoutEnd  *time.Time `json:"lockout_end,omitempty"`
	Roles       []string   `json:"roles"`
}

var (
	// ErrUserNotFound is returned when a user cannot be found
	ErrUserNotFound = errors.New("user not found")

	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
	ErrPhoneExists    = errors.New("phone number already exists")

	// ErrInvalidCredentials is returned when login credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrWeakPassword       = errors.New("password does not meet complexity requirements")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrInvalidOTP         = errors.New("invalid otp code")
	ErrOTPExpired         = errors.New("otp code expired")
	ErrTermsNotAccepted   = errors.New("terms and conditions must be accepted")
	ErrInvalidRole        = errors.New("invalid role")
	ErrRoleAlreadyGranted = errors.New("user already has this role")

	// ErrAccountLocked is returned while a lockout from repeated wrong passwords is active.
	ErrAccountLocked = errors.New("account is temporarily locked")
	// ErrOTPAttemptsExceeded is returned once too many wrong codes discarded the OTP.
	ErrOTPAttemptsExceeded = errors.New("too many invalid otp attempts, request a new code")
	ErrSubjectRequired     = errors.New("subject is required")
	ErrMessageRequired     = errors.New("message is required")
	ErrNoSubscribers       = errors.New("no subscribed users")
)

// User API error codes (used in HTTP responses)
const (
	CodeEmailNotConfirmed = "EMAIL_NOT_CONFIRMED"
	CodeInvalidOTP        = "INVALID_OTP"
	CodeOTPExpired        = "OTP_EXPIRED"
	CodeWeakPassword      = "WEAK_PASSWORD"
	CodeAccountLocked     = "ACCOUNT_LOCKED"
	CodeTooManyAttempts   = "TOO_MANY_ATTEMPTS"
)
