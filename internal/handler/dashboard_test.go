package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"roaia/internal/model"
)

type fakeDashboard struct {
	dashboardService

	createReq   *model.CreateUserRequest
	editID      string
	editReq     *model.EditUserRequest
	toggled     []string
	resetID     string
	unlocked    []string
	unsubscribe []string
	err         error
}

func (f *fakeDashboard) CreateUser(ctx context.Context, req *model.CreateUserRequest) (*model.UserInfo, error) {
	f.createReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.UserInfo{ID: "user-new", Username: req.Username, Roles: req.Roles}, nil
}

func (f *fakeDashboard) EditUser(ctx context.Context, userID string, req *model.EditUserRequest) (*model.UserInfo, error) {
	f.editID, f.editReq = userID, req
	return &model.UserInfo{ID: userID, Username: req.Username}, nil
}

func (f *fakeDashboard) ToggleStatus(ctx context.Context, userID string) (*model.StatusResult, error) {
	f.toggled = append(f.toggled, userID)
	return &model.StatusResult{UserID: userID, IsDeleted: true, UpdatedAt: time.Now()}, nil
}

func (f *fakeDashboard) AdminResetPassword(ctx context.Context, userID string, req *model.AdminResetPasswordRequest) error {
	f.resetID = userID
	if req.NewPassword == "weak" {
		return model.ErrWeakPassword
	}
	return nil
}

func (f *fakeDashboard) Unlock(ctx context.Context, userID string) error {
	f.unlocked = append(f.unlocked, userID)
	return nil
}

func (f *fakeDashboard) SendMailNews(ctx context.Context, req *model.MailNewsRequest) (*model.MailNewsResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.MailNewsResult{Recipients: 3}, nil
}

func (f *fakeDashboard) UnsubscribeMailNews(ctx context.Context, email string) error {
	f.unsubscribe = append(f.unsubscribe, email)
	if email != "a@example.com" {
		return model.ErrUserNotFound
	}
	return nil
}

func TestDashboardHandler_CreateUser(t *testing.T) {
	svc := &fakeDashboard{}
	h := NewDashboardHandler(svc, zap.NewNop())

	req := jsonRequest(t, http.MethodPost, "/api/dashboard/users", model.CreateUserRequest{
		Username: "bao", Email: "bao@example.com", Password: "Str0ng!Pass", Roles: []string{model.RoleAdmin},
	})
	rec := serve(http.MethodPost, "/api/dashboard/users", h.CreateUser, req, &admin)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{model.RoleAdmin}, svc.createReq.Roles)
	var body model.UserInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "user-new", body.ID)
}

func TestDashboardHandler_CreateUser_Conflict(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboard{err: model.ErrEmailExists}, zap.NewNop())

	req := jsonRequest(t, http.MethodPost, "/api/dashboard/users", model.CreateUserRequest{Username: "bao"})
	rec := serve(http.MethodPost, "/api/dashboard/users", h.CreateUser, req, &admin)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDashboardHandler_EditUser(t *testing.T) {
	svc := &fakeDashboard{}
	h := NewDashboardHandler(svc, zap.NewNop())

	req := jsonRequest(t, http.MethodPut, "/api/dashboard/users/user-7", model.EditUserRequest{Username: "ann"})
	rec := serve(http.MethodPut, "/api/dashboard/users/{id}", h.EditUser, req, &admin)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", svc.editID)
	assert.Nil(t, svc.editReq.Roles)
}

func TestDashboardHandler_ToggleStatus(t *testing.T) {
	svc := &fakeDashboard{}
	h := NewDashboardHandler(svc, zap.NewNop())
	pattern := "/api/dashboard/users/{id}/toggle-status"

	rec := serve(http.MethodPost, pattern, h.ToggleStatus,
		httptest.NewRequest(http.MethodPost, "/api/dashboard/users/user-7/toggle-status", nil), &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var body model.StatusResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.IsDeleted)

	rec = serve(http.MethodPost, pattern, h.ToggleStatus,
		httptest.NewRequest(http.MethodPost, "/api/dashboard/users/admin-1/toggle-status", nil), &admin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []string{"user-7"}, svc.toggled)
}

func TestDashboardHandler_ResetPassword(t *testing.T) {
	svc := &fakeDashboard{}
	h := NewDashboardHandler(svc, zap.NewNop())
	pattern := "/api/dashboard/users/{id}/reset-password"

	req := jsonRequest(t, http.MethodPost, "/api/dashboard/users/user-7/reset-password",
		model.AdminResetPasswordRequest{NewPassword: "N3w!Password"})
	rec := serve(http.MethodPost, pattern, h.ResetPassword, req, &admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-7", svc.resetID)

	req = jsonRequest(t, http.MethodPost, "/api/dashboard/users/user-7/reset-password",
		model.AdminResetPasswordRequest{NewPassword: "weak"})
	rec = serve(http.MethodPost, pattern, h.ResetPassword, req, &admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, model.CodeWeakPassword, errorCode(t, rec))
}

func TestDashboardHandler_Unlock(t *testing.T) {
	svc := &fakeDashboard{}
	h := NewDashboardHandler(svc, zap.NewNop())

	rec := serve(http.MethodPost, "/api/dashboard/users/{id}/unlock", h.Unlock,
		httptest.NewRequest(http.MethodPost, "/api/dashboard/users/user-7/unlock", nil), &admin)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"user-7"}, svc.unlocked)
}

func TestDashboardHandler_SendMailNews(t *testing.T) {
	h := NewDashboardHandler(&fakeDashboard{}, zap.NewNop())
	req := jsonRequest(t, http.MethodPost, "/api/dashboard/mail-news",
		model.MailNewsRequest{Subject: "News", HTMLMessage: "<p>hi</p>"})
	rec := serve(http.MethodPost, "/api/dashboard/mail-news", h.SendMailNews, req, &admin)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body model.MailNewsResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 3, body.Recipients)

	h = NewDashboardHandler(&fakeDashboard{err: model.ErrNoSubscribers}, zap.NewNop())
	req = jsonRequest(t, http.MethodPost, "/api/dashboard/mail-news", model.MailNewsRequest{Subject: "News"})
	rec = serve(http.MethodPost, "/api/dashboard/mail-news", h.SendMailNews, req, &admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardHandler_UnsubscribeMailNews(t *testing.T) {
	svc := &fakeDashboard{}
	h := NewDashboardHandler(svc, zap.NewNop())
	pattern := "/api/auth/unsubscribe-mail-news/{email}"

	rec := serve(http.MethodPost, pattern, h.UnsubscribeMailNews,
		httptest.NewRequest(http.MethodPost, "/api/auth/unsubscribe-mail-news/a@example.com", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.MethodPost, pattern, h.UnsubscribeMailNews,
		httptest.NewRequest(http.MethodPost, "/api/auth/unsubscribe-mail-news/ghost@example.com", nil), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, []string{"a@example.com", "ghost@example.com"}, svc.unsubscribe)
}
