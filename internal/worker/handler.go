package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"roaia/internal/model"
	"roaia/internal/queue"
)

// Notifier delivers a notification to a wearer's devices.
type Notifier interface {
	Send(ctx context.Context, req *model.SendNotificationRequest) (*model.SendResult, error)
}

// EmailSender delivers an HTML email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// ContactTemplate is the notification sent to the wearer when a contact is added.
// Body gets the contact name and a closing sentence appended.
type ContactTemplate struct {
	Title    string
	Body     string
	ImageURL string
	AudioURL string
	Category model.Category
}

// Handler processes background events from the queue.
type Handler struct {
	notifier Notifier
	mailer   EmailSender
	contact  ContactTemplate
	logger   *zap.Logger
}

// NewHandler creates a new event handler.
func NewHandler(notifier Notifier, mailer EmailSender, contact ContactTemplate, logger *zap.Logger) *Handler {
	if !contact.Category.Valid() {
		contact.Category = model.CategoryNormal
	}
	return &Handler{
		notifier: notifier,
		mailer:   mailer,
		contact:  contact,
		logger:   logger,
	}
}

// HandleEvent routes an event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, event queue.Event) error {
	switch event.Type {
	case queue.EventContactAdded:
		return h.handleContactAdded(ctx, event)
	case queue.EventEmailRequested:
		return h.handleEmailRequested(ctx, event)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
}

func (h *Handler) handleContactAdded(ctx context.Context, event queue.Event) error {
	if event.GlassesID == "" {
		return fmt.Errorf("contact_added: missing glasses id")
	}

	req := &model.SendNotificationRequest{
		GlassesID: event.GlassesID,
		Title:     h.contact.Title,
		Body:      fmt.Sprintf("%s %s. Make a positive impact on their journey!", h.contact.Body, event.ContactName),
		Category:  h.contact.Category,
	}
	if u := h.contact.ImageURL; u != "" {
		req.ImageURL = &u
	}
	if u := h.contact.AudioURL; u != "" {
		req.AudioURL = &u
	}

	result, err := h.notifier.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("contact_added: %w", err)
	}

	h.logger.Info("[Handler] ContactAdded OK",
		zap.String("glasses_id", event.GlassesID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("success", result.SuccessCount),
	)
	return nil
}

func (h *Handler) handleEmailRequested(ctx context.Context, event queue.Event) error {
	if event.To == "" {
		return fmt.Errorf("email_requested: missing recipient")
	}
	if err := h.mailer.Send(ctx, event.To, event.Subject, event.HTMLBody); err != nil {
		return fmt.Errorf("email_requested: %w", err)
	}
	h.logger.Info("[Handler] EmailRequested OK", zap.String("to", event.To))
	return nil
}
