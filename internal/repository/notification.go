package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"roaia/internal/model"
)

const notificationColumns = `id, glasses_id, title, body, image_url, audio_url, category, is_read, created_at`

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create inserts a new notification.
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (glasses_id, title, body, image_url, audio_url, category)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_read, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		n.GlassesID, n.Title, n.Body, n.ImageURL, n.AudioURL, n.Category,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListByGlasses returns all notifications for a profile, newest first.
func (r *notificationRepository) ListByGlasses(ctx context.Context, glassesID string) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE glasses_id = $1
		ORDER BY created_at DESC, id ASC`

	notifications := []model.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, glassesID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, glassesID string, id int64) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE glasses_id = $1 AND id = $2`

	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, glassesID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) Delete(ctx context.Context, glassesID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE glasses_id = $1 AND id = $2`, glassesID, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotificationNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteAllByGlasses(ctx context.Context, glassesID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE glasses_id = $1`, glassesID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return res.RowsAffected()
}

func (r *notificationRepository) ToggleRead(ctx context.Context, glassesID string, id int64) (bool, error) {
	query := `
		UPDATE notifications SET is_read = NOT is_read
		WHERE glasses_id = $1 AND id = $2
		RETURNING is_read
	`
	var isRead bool
	if err := r.db.GetContext(ctx, &isRead, query, glassesID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, model.ErrNotificationNotFound
		}
		return false, fmt.Errorf("toggle notification: %w", err)
	}
	return isRead, nil
}

// MarkAllRead marks all notifications for a profile as read.
func (r *notificationRepository) MarkAllRead(ctx context.Context, glassesID string) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = true
		WHERE glasses_id = $1 AND is_read = false
	`
	res, err := r.db.ExecContext(ctx, query, glassesID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications as read: %w", err)
	}
	return res.RowsAffected()
}

// UnreadCount returns the count of unread notifications.
func (r *notificationRepository) UnreadCount(ctx context.Context, glassesID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE glasses_id = $1 AND is_read = false
	`
	var count int
	if err := r.db.GetContext(ctx, &count, query, glassesID); err != nil {
		return 0, fmt.Errorf("get unread count: %w", err)
	}
	return count, nil
}
