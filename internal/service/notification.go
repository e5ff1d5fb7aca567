package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"roaia/internal/metrics"
	"roaia/internal/model"
	"roaia/internal/repository"
)

// NamePlaceholder is replaced by the wearer's name in Normal notifications.
const NamePlaceholder = "{name}"

const defaultSound = "default"

// Templater rewrites a notification body for one category.
type Templater func(body, name string) string

// DefaultTemplaters returns the body templating used for each category.
func DefaultTemplaters() map[model.Category]Templater {
	return map[model.Category]Templater{
		model.CategoryCritical: func(body, name string) string {
			if name == "" {
				return body
			}
			return name + ": " + body
		},
		model.CategoryNormal: func(body, name string) string {
			return strings.ReplaceAll(body, NamePlaceholder, name)
		},
		model.CategoryWarning: func(body, _ string) string {
			return body
		},
	}
}

// NotificationService fans notifications out to a wearer's devices, keeps the
// delivery record and prunes endpoints the provider rejects.
type NotificationService struct {
	notifRepo   repository.NotificationRepository
	tokenRepo   repository.DeviceTokenRepository
	glassesRepo repository.GlassesRepository
	push        PushGateway
	templaters  map[model.Category]Templater
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewNotificationService(
	notifRepo repository.NotificationRepository,
	tokenRepo repository.DeviceTokenRepository,
	glassesRepo repository.GlassesRepository,
	push PushGateway,
	m *metrics.Metrics,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		notifRepo:   notifRepo,
		tokenRepo:   tokenRepo,
		glassesRepo: glassesRepo,
		push:        push,
		templaters:  DefaultTemplaters(),
		metrics:     m,
		logger:      logger,
	}
}

// Send delivers one notification to every registered device of the wearer.
//
// A profile without devices yields OutcomeNoEndpoints and nothing is sent.
// The record is persisted, with the templated body, only when at least one
// device accepted the message. Tokens the provider rejected permanently are
// deleted on every send, whatever the overall outcome.
func (s *NotificationService) Send(ctx context.Context, req *model.SendNotificationRequest) (*model.SendResult, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, model.ErrTitleRequired
	}
	if strings.TrimSpace(req.Body) == "" {
		return nil, model.ErrBodyRequired
	}
	category, err := model.ParseCategory(string(req.Category))
	if err != nil {
		return nil, err
	}

	glasses, err := s.glassesRepo.GetByID(ctx, req.GlassesID)
	if err != nil {
		return nil, err
	}

	stored, err := s.tokenRepo.TokensByGlasses(ctx, req.GlassesID)
	if err != nil {
		return nil, err
	}
	tokens := make([]string, 0, len(stored))
	for _, t := range stored {
		if strings.TrimSpace(t) != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return &model.SendResult{
			Outcome: model.OutcomeNoEndpoints,
			Message: "No device tokens found",
		}, nil
	}

	imageURL, err := optionalAbsoluteURL("image_url", req.ImageURL)
	if err != nil {
		return nil, err
	}
	audioURL, err := optionalAbsoluteURL("audio_url", req.AudioURL)
	if err != nil {
		return nil, err
	}

	body := s.templaters[category](req.Body, glasses.DisplayName())

	msg := &PushMessage{
		Tokens:   tokens,
		Title:    req.Title,
		Body:     body,
		ImageURL: deref(imageURL),
		Sound:    defaultSound,
		Data: map[string]string{
			"category":   string(category),
			"glasses_id": req.GlassesID,
		},
	}
	if audioURL != nil {
		msg.Sound = *audioURL
	}

	resp, err := s.push.SendMulticast(ctx, msg)
	if err != nil {
		s.logger.Error("[NotificationService] Push failed",
			zap.String("glasses_id", req.GlassesID),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.PushResult(resp.SuccessCount, resp.FailureCount)

	result := &model.SendResult{
		SuccessCount: resp.SuccessCount,
		FailureCount: resp.FailureCount,
	}

	if resp.SuccessCount > 0 {
		record := &model.Notification{
			GlassesID: req.GlassesID,
			Title:     req.Title,
			Body:      body,
			ImageURL:  imageURL,
			AudioURL:  audioURL,
			Category:  category,
		}
		if err := s.notifRepo.Create(ctx, record); err != nil {
			return nil, err
		}
		result.Notification = record
	}

	if resp.FailureCount > 0 {
		pruned, err := s.pruneFailed(ctx, tokens, resp.Results)
		if err != nil {
			return nil, err
		}
		result.PrunedCount = int(pruned)
	}

	switch {
	case resp.FailureCount == 0:
		result.Outcome = model.OutcomeDelivered
		result.Message = "Notification sent successfully"
	case resp.SuccessCount > 0:
		result.Outcome = model.OutcomePartiallyDelivered
		result.Message = failureMessage(resp, result.PrunedCount)
	default:
		result.Outcome = model.OutcomeUndelivered
		result.Message = failureMessage(resp, result.PrunedCount)
	}

	s.logger.Info("[NotificationService] Send OK",
		zap.String("glasses_id", req.GlassesID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("success", result.SuccessCount),
		zap.Int("failure", result.FailureCount),
		zap.Int("pruned", result.PrunedCount),
	)
	return result, nil
}

// pruneFailed deletes the tokens whose result is a permanent failure.
// results[i] belongs to tokens[i].
func (s *NotificationService) pruneFailed(ctx context.Context, tokens []string, results []PushResult) (int64, error) {
	failed := make([]string, 0)
	for i, r := range results {
		if i >= len(tokens) {
			break
		}
		if !r.Success && !r.Retryable {
			failed = append(failed, tokens[i])
		}
	}
	if len(failed) == 0 {
		return 0, nil
	}

	n, err := s.tokenRepo.DeleteByTokens(ctx, failed)
	if err != nil {
		return 0, fmt.Errorf("prune device tokens: %w", err)
	}
	s.metrics.EndpointsPruned(n)
	return n, nil
}

func failureMessage(resp *PushResponse, pruned int) string {
	msg := fmt.Sprintf("Error in sending notification. Success Count: %d | Failure Count: %d",
		resp.SuccessCount, resp.FailureCount)
	if pruned > 0 {
		msg += fmt.Sprintf(" | Invalid device tokens deleted: %d", pruned)
	}
	return msg
}

// optionalAbsoluteURL returns nil for a missing or blank value and
// *model.InvalidURLError when the value is not an absolute URL.
func optionalAbsoluteURL(field string, raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	v := strings.TrimSpace(*raw)
	u, err := url.Parse(v)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, &model.InvalidURLError{Field: field, Value: v}
	}
	return &v, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// List returns the wearer's notifications, newest first, and the unread count.
func (s *NotificationService) List(ctx context.Context, glassesID string) (*model.ListNotificationsResponse, error) {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return nil, err
	}

	notifications, err := s.notifRepo.ListByGlasses(ctx, glassesID)
	if err != nil {
		return nil, err
	}

	unread := 0
	for _, n := range notifications {
		if !n.IsRead {
			unread++
		}
	}

	return &model.ListNotificationsResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	}, nil
}

// Delete removes one notification of the wearer.
func (s *NotificationService) Delete(ctx context.Context, glassesID string, id int64) error {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return err
	}
	return s.notifRepo.Delete(ctx, glassesID, id)
}

// DeleteAll removes every notification of the wearer.
func (s *NotificationService) DeleteAll(ctx context.Context, glassesID string) (int64, error) {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return 0, err
	}
	return s.notifRepo.DeleteAllByGlasses(ctx, glassesID)
}

// ToggleRead flips the read flag and returns the new value.
func (s *NotificationService) ToggleRead(ctx context.Context, glassesID string, id int64) (bool, error) {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return false, err
	}
	return s.notifRepo.ToggleRead(ctx, glassesID, id)
}

// MarkAllRead marks all notifications of the wearer as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, glassesID string) (int64, error) {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return 0, err
	}
	return s.notifRepo.MarkAllRead(ctx, glassesID)
}

// UnreadCount returns the number of unread notifications (for badge display).
func (s *NotificationService) UnreadCount(ctx context.Context, glassesID string) (int, error) {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return 0, err
	}
	return s.notifRepo.UnreadCount(ctx, glassesID)
}

func (s *NotificationService) ensureGlasses(ctx context.Context, glassesID string) error {
	exists, err := s.glassesRepo.Exists(ctx, glassesID)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrGlassesNotFound
	}
	return nil
}
