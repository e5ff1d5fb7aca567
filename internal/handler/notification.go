package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"roaia/internal/httputil"
	"roaia/internal/model"
)

type notificationService interface {
	Send(ctx context.Context, req *model.SendNotificationRequest) (*model.SendResult, error)
	List(ctx context.Context, glassesID string) (*model.ListNotificationsResponse, error)
	Delete(ctx context.Context, glassesID string, id int64) error
	DeleteAll(ctx context.Context, glassesID string) (int64, error)
	ToggleRead(ctx context.Context, glassesID string, id int64) (bool, error)
	MarkAllRead(ctx context.Context, glassesID string) (int64, error)
	UnreadCount(ctx context.Context, glassesID string) (int, error)
}

type NotificationHandler struct {
	notifService notificationService
	logger       *zap.Logger
}

func NewNotificationHandler(notifService notificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
		logger:       logger,
	}
}

// Send handles POST /api/glasses/{id}/notifications
// Pushes to every device of the wearer. 201 when a record was stored,
// 200 with the outcome otherwise.
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.GlassesID = chi.URLParam(r, "id")
	if req.Category == "" {
		req.Category = model.CategoryNormal
	}

	result, err := h.notifService.Send(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "SendNotification", err, "Failed to send notification")
		return
	}

	status := http.StatusOK
	if result.Notification != nil {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

// List handles GET /api/glasses/{id}/notifications
// Newest first, with the unread count.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}

	resp, err := h.notifService.List(r.Context(), glassesID)
	if err != nil {
		writeServiceError(w, h.logger, "ListNotifications", err, "Failed to get notifications")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/glasses/{id}/notifications/{nid}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}
	id, ok := int64Param(w, r, "nid")
	if !ok {
		return
	}

	if err := h.notifService.Delete(r.Context(), glassesID, id); err != nil {
		writeServiceError(w, h.logger, "DeleteNotification", err, "Failed to delete notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll handles DELETE /api/glasses/{id}/notifications
func (h *NotificationHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}

	n, err := h.notifService.DeleteAll(r.Context(), glassesID)
	if err != nil {
		writeServiceError(w, h.logger, "DeleteAllNotifications", err, "Failed to delete notifications")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// ToggleRead handles PATCH /api/glasses/{id}/notifications/{nid}/read
func (h *NotificationHandler) ToggleRead(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}
	id, ok := int64Param(w, r, "nid")
	if !ok {
		return
	}

	isRead, err := h.notifService.ToggleRead(r.Context(), glassesID, id)
	if err != nil {
		writeServiceError(w, h.logger, "ToggleRead", err, "Failed to update notification")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"is_read": isRead})
}

// MarkAllRead handles POST /api/glasses/{id}/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}

	n, err := h.notifService.MarkAllRead(r.Context(), glassesID)
	if err != nil {
		writeServiceError(w, h.logger, "MarkAllRead", err, "Failed to mark notifications as read")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// UnreadCount handles GET /api/glasses/{id}/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	glassesID, ok := glassesParam(w, r)
	if !ok {
		return
	}

	count, err := h.notifService.UnreadCount(r.Context(), glassesID)
	if err != nil {
		writeServiceError(w, h.logger, "UnreadCount", err, "Failed to count notifications")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}
