package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"roaia/internal/model"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9\-._@]+$`)
	namePattern     = regexp.MustCompile(`^[a-zA-Z\-_ ]+$`)
	mobilePattern   = regexp.MustCompile(`^01[0125][0-9]{8}$`)
)

// Minimum password length; a password also needs a digit, a lower and upper
// case letter and a symbol.
const minPasswordLength = 8

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return model.ErrWeakPassword
	}
	var digit, lower, upper, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !digit || !lower || !upper || !symbol {
		return model.ErrWeakPassword
	}
	return nil
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return &ValidationError{Field: "username", Reason: "may only contain letters, digits and - . _ @"}
	}
	return nil
}

func validateName(field, value string) error {
	if !namePattern.MatchString(strings.TrimSpace(value)) {
		return &ValidationError{Field: field, Reason: "may only contain English letters, spaces, - and _"}
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}

func validatePhone(phone *string) error {
	if phone == nil || *phone == "" {
		return nil
	}
	if !mobilePattern.MatchString(*phone) {
		return &ValidationError{Field: "phone_number", Reason: "is not a valid mobile number"}
	}
	return nil
}

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}
