package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"roaia/internal/httputil"
	"roaia/internal/model"
	"roaia/internal/service"
)

var badRequestErrors = []error{
	model.ErrTitleRequired,
	model.ErrBodyRequired,
	model.ErrInvalidCoordinates,
	model.ErrGlassesIDRequired,
	model.ErrContactNameRequired,
	model.ErrInvalidGender,
	model.ErrInvalidAge,
	model.ErrInvalidQuota,
	model.ErrPasswordMismatch,
	model.ErrTermsNotAccepted,
	model.ErrInvalidRole,
	model.ErrQuestionRequired,
	model.ErrEmptyAudio,
	model.ErrSubjectRequired,
	model.ErrMessageRequired,
}

var notFoundErrors = []error{
	model.ErrUserNotFound,
	model.ErrGlassesNotFound,
	model.ErrContactNotFound,
	model.ErrNotificationNotFound,
	model.ErrLocationNotFound,
	model.ErrNoSubscribers,
}

var conflictErrors = []error{
	model.ErrUsernameExists,
	model.ErrEmailExists,
	model.ErrPhoneExists,
	model.ErrRoleAlreadyGranted,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeServiceError maps domain errors to the error envelope. Anything
// unrecognised is logged and reported as a 500 with fallback as message.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error, fallback string) {
	var validation *service.ValidationError
	var badURL *model.InvalidURLError

	switch {
	case errors.As(err, &validation):
		httputil.WriteBadRequestWithCode(w, httputil.ErrCodeValidation, validation.Error())
	case errors.As(err, &badURL):
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidURL, badURL.Error())
	case errors.Is(err, model.ErrInvalidCategory):
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidCategory, err.Error())
	case errors.Is(err, model.ErrFileTooLarge):
		httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "File exceeds 4MB limit")
	case errors.Is(err, model.ErrInvalidImageType):
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidImageType, "Unsupported image type. Allowed: jpeg, png")
	case errors.Is(err, model.ErrInvalidAudioType):
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidAudio, "Unsupported audio type. Allowed: mp3, wav, m4a")
	case errors.Is(err, model.ErrWeakPassword):
		httputil.WriteBadRequestWithCode(w, model.CodeWeakPassword, err.Error())
	case errors.Is(err, model.ErrInvalidOTP):
		httputil.WriteBadRequestWithCode(w, model.CodeInvalidOTP, "Invalid OTP code")
	case errors.Is(err, model.ErrOTPExpired):
		httputil.WriteBadRequestWithCode(w, model.CodeOTPExpired, "OTP code has expired")
	case errors.Is(err, model.ErrOTPAttemptsExceeded):
		httputil.WriteTooManyRequests(w, model.CodeTooManyAttempts, "Too many invalid codes, request a new one")
	case isAny(err, badRequestErrors):
		httputil.WriteBadRequest(w, err.Error())
	case isAny(err, notFoundErrors):
		httputil.WriteNotFound(w, err.Error())
	case isAny(err, conflictErrors):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, model.ErrContactQuotaExceeded):
		httputil.WriteConflictWithCode(w, model.CodeQuotaExceeded, err.Error())
	case errors.Is(err, model.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "Invalid email, username or password")
	case errors.Is(err, model.ErrAccountLocked):
		httputil.WriteForbiddenWithCode(w, model.CodeAccountLocked, "Account is locked, try again later")
	case errors.Is(err, model.ErrEmailNotConfirmed):
		httputil.WriteForbiddenWithCode(w, model.CodeEmailNotConfirmed, "Email is not confirmed")
	case errors.Is(err, model.ErrInvalidToken):
		httputil.WriteUnauthorizedWithCode(w, model.CodeTokenInvalid, "Invalid refresh token")
	case errors.Is(err, model.ErrInactiveToken):
		httputil.WriteUnauthorizedWithCode(w, model.CodeTokenInactive, "Inactive refresh token")
	case errors.Is(err, model.ErrAssistantUnavailable):
		httputil.WriteServiceUnavailable(w, "Assistant is not configured")
	default:
		logger.Error("[Handler] "+op+" FAILED", zap.Error(err))
		httputil.WriteInternalError(w, fallback)
	}
}
