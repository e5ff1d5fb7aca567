package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"roaia/internal/httputil"
	"roaia/internal/model"
	"roaia/internal/transport/http/middleware"
)

// RefreshTokenCookie carries the refresh token for browser clients.
const RefreshTokenCookie = "refreshToken"

// maxFormSize leaves room for form fields next to a 4MB image.
const maxFormSize = model.MaxImageSizeBytes + 1024*1024

type sessionService interface {
	Refresh(ctx context.Context, tokenString string) (*model.AuthResult, error)
	Revoke(ctx context.Context, tokenString string, deviceToken *string) (bool, error)
}

type userService interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResult, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResult, error)
	ModifyUser(ctx context.Context, userID string, req *model.ModifyUserRequest) (*model.UserInfo, error)
	ChangePassword(ctx context.Context, userID string, req *model.ChangePasswordRequest) error
	SendOTP(ctx context.Context, identifier string) error
	VerifyOTP(ctx context.Context, req *model.VerifyOTPRequest) error
	ResetPassword(ctx context.Context, req *model.ResetPasswordRequest) error
	AddRole(ctx context.Context, req *model.AddRoleRequest) error
	GetUserInfo(ctx context.Context, userID string) (*model.UserInfo, error)
	ListUsers(ctx context.Context, limit, offset int) ([]model.UserInfo, error)
	DeleteAccount(ctx context.Context, userID string) error
}

type imageStore interface {
	UploadImage(ctx context.Context, file multipart.File, header *multipart.FileHeader, folder string) (*model.UploadResult, error)
	DeleteObject(ctx context.Context, key string) error
}

// AuthHandler groups auth-related HTTP endpoints and their dependencies.
type AuthHandler struct {
	users    userService
	sessions sessionService
	media    imageStore
	logger   *zap.Logger
}

// NewAuthHandler wires dependencies for authentication endpoints.
func NewAuthHandler(users userService, sessions sessionService, media imageStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		media:    media,
		logger:   logger,
	}
}

// Register handles multipart sign-up with an optional profile image.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	isAgree, _ := strconv.ParseBool(r.FormValue("is_agree"))
	req := model.RegisterRequest{
		FirstName:   strings.TrimSpace(r.FormValue("first_name")),
		LastName:    strings.TrimSpace(r.FormValue("last_name")),
		Username:    strings.TrimSpace(r.FormValue("username")),
		Email:       strings.TrimSpace(r.FormValue("email")),
		Password:    r.FormValue("password"),
		PhoneNumber: optionalFormValue(r, "phone_number"),
		GlassesID:   strings.TrimSpace(r.FormValue("glasses_id")),
		IsAgree:     isAgree,
	}

	upload, ok := h.uploadOptionalImage(w, r, model.FolderUsers)
	if !ok {
		return
	}
	if upload != nil {
		req.ImageURL = &upload.URL
		req.ImageKey = &upload.Key
	}

	result, err := h.users.Register(r.Context(), &req)
	if err != nil {
		h.discardUpload(r.Context(), upload)
		writeServiceError(w, h.logger, "Register", err, "Failed to register")
		return
	}

	setRefreshCookie(w, result)
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" {
		httputil.WriteBadRequest(w, "Email, username or phone number is required")
		return
	}
	if req.Password == "" {
		httputil.WriteBadRequest(w, "Password is required")
		return
	}

	result, err := h.users.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "Login", err, "Failed to login")
		return
	}

	setRefreshCookie(w, result)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// RefreshToken rotates the refresh token. The token comes from the body or,
// when the body omits it, from the refreshToken cookie.
// POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req model.RefreshRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	token := tokenOrCookie(r, req.RefreshToken)
	if token == "" {
		httputil.WriteBadRequest(w, "Refresh token is required")
		return
	}

	result, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		writeServiceError(w, h.logger, "RefreshToken", err, "Failed to refresh token")
		return
	}

	setRefreshCookie(w, result)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// RevokeToken revokes an active refresh token and unregisters the device token if given.
// POST /api/auth/revoke-token
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req model.RevokeRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	token := tokenOrCookie(r, req.RefreshToken)
	if token == "" {
		httputil.WriteBadRequest(w, "Refresh token is required")
		return
	}

	revoked, err := h.sessions.Revoke(r.Context(), token, req.DeviceToken)
	if err != nil {
		writeServiceError(w, h.logger, "RevokeToken", err, "Failed to revoke token")
		return
	}
	if !revoked {
		httputil.WriteBadRequestWithCode(w, model.CodeTokenInvalid, "Token is invalid")
		return
	}

	clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// SendOTP emails a one-time code to confirm the address or reset the password.
// POST /api/auth/send-otp
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req model.SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httputil.WriteBadRequest(w, "Email is required")
		return
	}

	if err := h.users.SendOTP(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		writeServiceError(w, h.logger, "SendOTP", err, "Failed to send OTP")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

// VerifyOTP confirms the email address.
// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Email == "" || req.OTPCode == "" {
		httputil.WriteBadRequest(w, "Email and OTP code are required")
		return
	}

	if err := h.users.VerifyOTP(r.Context(), &req); err != nil {
		writeServiceError(w, h.logger, "VerifyOTP", err, "Failed to verify OTP")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Email confirmed"})
}

// ResetPassword sets a new password after OTP verification.
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.Email == "" || req.OTPCode == "" {
		httputil.WriteBadRequest(w, "Email and OTP code are required")
		return
	}

	if err := h.users.ResetPassword(r.Context(), &req); err != nil {
		writeServiceError(w, h.logger, "ResetPassword", err, "Failed to reset password")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password reset"})
}

// ModifyUser updates the caller's profile; multipart with an optional new image.
// PUT /api/auth/modify-user
func (h *AuthHandler) ModifyUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}
	if !parseMultipart(w, r) {
		return
	}

	req := model.ModifyUserRequest{
		FirstName:   optionalFormValue(r, "first_name"),
		LastName:    optionalFormValue(r, "last_name"),
		Username:    optionalFormValue(r, "username"),
		PhoneNumber: optionalFormValue(r, "phone_number"),
	}

	upload, ok := h.uploadOptionalImage(w, r, model.FolderUsers)
	if !ok {
		return
	}
	if upload != nil {
		req.ImageURL = &upload.URL
		req.ImageKey = &upload.Key
	}

	info, err := h.users.ModifyUser(r.Context(), userID, &req)
	if err != nil {
		h.discardUpload(r.Context(), upload)
		writeServiceError(w, h.logger, "ModifyUser", err, "Failed to modify user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// ChangePassword handles PUT /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.users.ChangePassword(r.Context(), userID, &req); err != nil {
		writeServiceError(w, h.logger, "ChangePassword", err, "Failed to change password")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

// AddRole grants a role to a user (admin only).
// POST /api/auth/add-role
func (h *AuthHandler) AddRole(w http.ResponseWriter, r *http.Request) {
	var req model.AddRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.UserID == "" || req.Role == "" {
		httputil.WriteBadRequest(w, "user_id and role are required")
		return
	}

	if err := h.users.AddRole(r.Context(), &req); err != nil {
		writeServiceError(w, h.logger, "AddRole", err, "Failed to add role")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Role added"})
}

// ListUsers handles GET /api/auth/users?limit=&offset= (admin only)
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid limit parameter")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid offset parameter")
		return
	}

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, h.logger, "ListUsers", err, "Failed to list users")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

// GetUser returns a user; callers may only read themselves unless admin.
// GET /api/auth/users/{id}
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.canActOn(r, id) {
		httputil.WriteForbidden(w, "Not allowed to read this user")
		return
	}

	info, err := h.users.GetUserInfo(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "GetUser", err, "Failed to get user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// UserInfo returns the authenticated caller.
// GET /api/account/user-info
func (h *AuthHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	info, err := h.users.GetUserInfo(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, "UserInfo", err, "Failed to get user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// DeleteAccount hard-deletes a user with its sessions and devices.
// DELETE /api/account/{userId}
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userId")
	if !h.canActOn(r, id) {
		httputil.WriteForbidden(w, "Not allowed to delete this account")
		return
	}

	if err := h.users.DeleteAccount(r.Context(), id); err != nil {
		writeServiceError(w, h.logger, "DeleteAccount", err, "Failed to delete account")
		return
	}
	if caller, _ := middleware.GetUserIDFromContext(r.Context()); caller == id {
		clearRefreshCookie(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) canActOn(r *http.Request, userID string) bool {
	caller, _ := middleware.GetUserIDFromContext(r.Context())
	if caller != "" && caller == userID {
		return true
	}
	return middleware.HasAnyRole(r.Context(), model.RoleAdmin, model.RoleSuperAdmin)
}

// uploadOptionalImage stores the "image" form file if present. ok is false
// when a response has already been written.
func (h *AuthHandler) uploadOptionalImage(w http.ResponseWriter, r *http.Request, folder string) (*model.UploadResult, bool) {
	return uploadFormImage(w, r, h.media, h.logger, folder)
}

func (h *AuthHandler) discardUpload(ctx context.Context, upload *model.UploadResult) {
	discardUpload(ctx, h.media, h.logger, upload)
}

func uploadFormImage(w http.ResponseWriter, r *http.Request, media imageStore, logger *zap.Logger, folder string) (*model.UploadResult, bool) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid image upload")
		return nil, false
	}
	defer file.Close()

	upload, err := media.UploadImage(r.Context(), file, header, folder)
	if err != nil {
		writeServiceError(w, logger, "UploadImage", err, "Failed to upload image")
		return nil, false
	}
	return upload, true
}

// discardUpload removes an image stored for a request that then failed.
func discardUpload(ctx context.Context, media imageStore, logger *zap.Logger, upload *model.UploadResult) {
	if upload == nil {
		return
	}
	if err := media.DeleteObject(ctx, upload.Key); err != nil {
		logger.Warn("[Handler] Discard upload FAILED", zap.String("key", upload.Key), zap.Error(err))
	}
}

func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart):
			httputil.WriteBadRequest(w, "Content-Type must be multipart/form-data")
		case errors.As(err, &tooLarge):
			httputil.WriteBadRequestWithCode(w, model.CodeFileTooLarge, "Request exceeds upload limit")
		default:
			httputil.WriteBadRequest(w, "Invalid form data")
		}
		return false
	}
	return true
}

// optionalFormValue returns nil when the field is absent from the form.
func optionalFormValue(r *http.Request, key string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := strings.TrimSpace(values[0])
	return &v
}

func decodeOptionalJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func tokenOrCookie(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func setRefreshCookie(w http.ResponseWriter, result *model.AuthResult) {
	if result == nil || result.RefreshToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    result.RefreshToken,
		Path:     "/",
		Expires:  result.RefreshTokenExpiresOn,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}
