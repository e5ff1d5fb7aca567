package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"roaia/internal/httputil"
	"roaia/internal/model"
	"roaia/internal/transport/http/middleware"
)

type dashboardService interface {
	CreateUser(ctx context.Context, req *model.CreateUserRequest) (*model.UserInfo, error)
	EditUser(ctx context.Context, userID string, req *model.EditUserRequest) (*model.UserInfo, error)
	ToggleStatus(ctx context.Context, userID string) (*model.StatusResult, error)
	AdminResetPassword(ctx context.Context, userID string, req *model.AdminResetPasswordRequest) error
	Unlock(ctx context.Context, userID string) error
	SendMailNews(ctx context.Context, req *model.MailNewsRequest) (*model.MailNewsResult, error)
	UnsubscribeMailNews(ctx context.Context, email string) error
}

// DashboardHandler serves the administrator account tools and the newsletter.
type DashboardHandler struct {
	users  dashboardService
	logger *zap.Logger
}

func NewDashboardHandler(users dashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{users: users, logger: logger}
}

// CreateUser handles POST /api/dashboard/users
func (h *DashboardHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	info, err := h.users.CreateUser(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "CreateUser", err, "Failed to create user")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, info)
}

// EditUser handles PUT /api/dashboard/users/{id}
func (h *DashboardHandler) EditUser(w http.ResponseWriter, r *http.Request) {
	var req model.EditUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	info, err := h.users.EditUser(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		writeServiceError(w, h.logger, "EditUser", err, "Failed to edit user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// ToggleStatus deactivates or reactivates an account. Admins cannot deactivate themselves.
// POST /api/dashboard/users/{id}/toggle-status
func (h *DashboardHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if caller, _ := middleware.GetUserIDFromContext(r.Context()); caller == id {
		httputil.WriteForbidden(w, "Cannot change your own status")
		return
	}

	status, err := h.users.ToggleStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "ToggleStatus", err, "Failed to toggle user status")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// ResetPassword handles POST /api/dashboard/users/{id}/reset-password
func (h *DashboardHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req model.AdminResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.users.AdminResetPassword(r.Context(), chi.URLParam(r, "id"), &req); err != nil {
		writeServiceError(w, h.logger, "AdminResetPassword", err, "Failed to reset password")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password reset"})
}

// Unlock handles POST /api/dashboard/users/{id}/unlock
func (h *DashboardHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Unlock(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, "Unlock", err, "Failed to unlock user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "User unlocked"})
}

// SendMailNews handles POST /api/dashboard/mail-news
func (h *DashboardHandler) SendMailNews(w http.ResponseWriter, r *http.Request) {
	var req model.MailNewsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	res, err := h.users.SendMailNews(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "SendMailNews", err, "Failed to send mail news")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, res)
}

// UnsubscribeMailNews handles POST /api/auth/unsubscribe-mail-news/{email}
func (h *DashboardHandler) UnsubscribeMailNews(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(chi.URLParam(r, "email"))
	if email == "" {
		httputil.WriteBadRequest(w, "Email is required")
		return
	}

	if err := h.users.UnsubscribeMailNews(r.Context(), email); err != nil {
		writeServiceError(w, h.logger, "UnsubscribeMailNews", err, "Failed to unsubscribe")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Unsubscribed"})
}
