package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"roaia/internal/model"
	"roaia/internal/repository"
)

// ContactEvents announces new contacts to the background worker.
type ContactEvents interface {
	PublishContactAdded(ctx context.Context, glassesID, contactName string) error
}

// AccountConfig holds plan settings for wearer profiles.
type AccountConfig struct {
	FreeContactQuota int
}

// AccountService manages wearer profiles and their contacts.
type AccountService struct {
	cfg      AccountConfig
	glasses  repository.GlassesRepository
	contacts repository.ContactRepository
	tx       repository.Transactor
	events   ContactEvents
	media    ObjectDeleter
	logger   *zap.Logger
	now      func() time.Time
}

func NewAccountService(
	cfg AccountConfig,
	glasses repository.GlassesRepository,
	contacts repository.ContactRepository,
	tx repository.Transactor,
	events ContactEvents,
	media ObjectDeleter,
	logger *zap.Logger,
) *AccountService {
	if cfg.FreeContactQuota <= 0 {
		cfg.FreeContactQuota = model.DefaultFreeContactQuota
	}
	return &AccountService{
		cfg:      cfg,
		glasses:  glasses,
		contacts: contacts,
		tx:       tx,
		events:   events,
		media:    media,
		logger:   logger,
		now:      time.Now,
	}
}

// GenerateGlassesID creates an empty wearer profile on the free plan and returns its id.
func (s *AccountService) GenerateGlassesID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		id := uuid.NewString()[:model.GlassesIDLength]

		exists, err := s.glasses.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if exists {
			continue
		}

		g := &model.Glasses{ID: id, MaxContacts: s.cfg.FreeContactQuota}
		if err := s.glasses.Create(ctx, g); err != nil {
			return "", err
		}
		s.logger.Info("[AccountService] Glasses created", zap.String("glasses_id", id))
		return id, nil
	}
	return "", errors.New("could not generate a unique glasses id")
}

func (s *AccountService) GetGlassesInfo(ctx context.Context, glassesID string) (*model.Glasses, error) {
	return s.glasses.GetByID(ctx, glassesID)
}

// ModifyGlassesInfo updates the wearer profile. When req.Diseases is non-nil
// the stored set is diffed against it and only the changes are applied.
func (s *AccountService) ModifyGlassesInfo(ctx context.Context, glassesID string, req *model.ModifyGlassesRequest) (*model.Glasses, error) {
	if req.FullName != nil {
		if err := validateName("full_name", *req.FullName); err != nil {
			return nil, err
		}
	}
	if req.Age != nil && (*req.Age < 10 || *req.Age > 100) {
		return nil, model.ErrInvalidAge
	}
	if req.Gender != nil && *req.Gender != model.GenderMale && *req.Gender != model.GenderFemale {
		return nil, model.ErrInvalidGender
	}

	g, err := s.glasses.GetByID(ctx, glassesID)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		g.FullName = &name
	}
	if req.Age != nil {
		g.Age = req.Age
	}
	if req.Gender != nil {
		g.Gender = req.Gender
	}

	var oldImageKey *string
	if req.ImageURL != nil && req.ImageKey != nil {
		oldImageKey = g.ImageKey
		g.ImageURL = req.ImageURL
		g.ImageKey = req.ImageKey
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.glasses.Update(ctx, tx, g); err != nil {
			return err
		}
		if req.Diseases == nil {
			return nil
		}

		current, err := s.glasses.Diseases(ctx, tx, glassesID)
		if err != nil {
			return err
		}
		added, removed := diffDiseases(current, req.Diseases)
		if err := s.glasses.RemoveDiseases(ctx, tx, glassesID, removed); err != nil {
			return err
		}
		return s.glasses.AddDiseases(ctx, tx, glassesID, added)
	})
	if err != nil {
		return nil, err
	}

	s.deleteImage(ctx, oldImageKey)

	return s.glasses.GetByID(ctx, glassesID)
}

// diffDiseases returns the names to add and to remove so that current becomes wanted.
func diffDiseases(current, wanted []string) (added, removed []string) {
	have := make(map[string]struct{}, len(current))
	for _, name := range current {
		have[name] = struct{}{}
	}
	want := make(map[string]struct{}, len(wanted))
	for _, name := range wanted {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := want[name]; dup {
			continue
		}
		want[name] = struct{}{}
		if _, ok := have[name]; !ok {
			added = append(added, name)
		}
	}
	for _, name := range current {
		if _, ok := want[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// AddContact stores a new contact within the profile's plan limit.
//
// The profile row is locked for the whole check-and-insert. A lapsed paid plan
// is first reset to the free quota and the contacts beyond it, by insertion
// order, are soft-deleted.
func (s *AccountService) AddContact(ctx context.Context, glassesID string, req *model.ContactRequest) (*model.Contact, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, model.ErrContactNameRequired
	}
	if err := validateName("name", name); err != nil {
		return nil, err
	}
	if err := validatePhone(req.PhoneNumber); err != nil {
		return nil, err
	}

	contact := &model.Contact{
		GlassesID:   glassesID,
		FullName:    name,
		Age:         req.Age,
		Relation:    req.Relation,
		PhoneNumber: emptyToNil(req.PhoneNumber),
		ImageURL:    req.ImageURL,
		ImageKey:    req.ImageKey,
	}

	var (
		trimmed int64
		full    bool
	)
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		g, err := s.glasses.LockForUpdate(ctx, tx, glassesID)
		if err != nil {
			return err
		}

		if g.SubscriptionExpired(s.now()) {
			if err := s.glasses.SetPlan(ctx, tx, glassesID, s.cfg.FreeContactQuota, nil); err != nil {
				return err
			}
			g.MaxContacts = s.cfg.FreeContactQuota
			if trimmed, err = s.contacts.SoftDeleteOverflow(ctx, tx, glassesID, s.cfg.FreeContactQuota); err != nil {
				return err
			}
		}

		count, err := s.contacts.CountActive(ctx, tx, glassesID)
		if err != nil {
			return err
		}
		if count >= g.MaxContacts {
			// Commit the plan reset even though nothing is inserted.
			full = true
			return nil
		}

		return s.contacts.Create(ctx, tx, contact)
	})
	if err != nil {
		return nil, err
	}

	if trimmed > 0 {
		s.logger.Info("[AccountService] Subscription expired, plan reset",
			zap.String("glasses_id", glassesID),
			zap.Int64("contacts_removed", trimmed),
		)
	}
	if full {
		return nil, model.ErrContactQuotaExceeded
	}

	if err := s.events.PublishContactAdded(ctx, glassesID, contact.FullName); err != nil {
		s.logger.Warn("[AccountService] Contact notification not queued",
			zap.String("glasses_id", glassesID),
			zap.Int64("contact_id", contact.ID),
			zap.Error(err),
		)
	}

	return contact, nil
}

// ModifyContact applies the non-empty fields of req to an active contact.
func (s *AccountService) ModifyContact(ctx context.Context, glassesID string, contactID int64, req *model.ContactRequest) (*model.Contact, error) {
	contact, err := s.contacts.GetActive(ctx, glassesID, contactID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		if err := validateName("name", name); err != nil {
			return nil, err
		}
		contact.FullName = name
	}
	if req.Age != nil {
		contact.Age = req.Age
	}
	if req.Relation != nil {
		contact.Relation = req.Relation
	}
	if req.PhoneNumber != nil {
		if err := validatePhone(req.PhoneNumber); err != nil {
			return nil, err
		}
		contact.PhoneNumber = emptyToNil(req.PhoneNumber)
	}

	var oldImageKey *string
	if req.ImageURL != nil && req.ImageKey != nil {
		oldImageKey = contact.ImageKey
		contact.ImageURL = req.ImageURL
		contact.ImageKey = req.ImageKey
	}

	if err := s.contacts.Update(ctx, contact); err != nil {
		return nil, err
	}

	s.deleteImage(ctx, oldImageKey)
	return contact, nil
}

func (s *AccountService) ListContacts(ctx context.Context, glassesID string) ([]model.Contact, error) {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return nil, err
	}
	return s.contacts.ListActive(ctx, glassesID)
}

func (s *AccountService) ListContactImages(ctx context.Context, glassesID string) ([]model.ContactImage, error) {
	if err := s.ensureGlasses(ctx, glassesID); err != nil {
		return nil, err
	}
	return s.contacts.ListImages(ctx, glassesID)
}

// DeleteContact soft-deletes the contact and removes its image from storage.
func (s *AccountService) DeleteContact(ctx context.Context, glassesID string, contactID int64) error {
	contact, err := s.contacts.GetActive(ctx, glassesID, contactID)
	if err != nil {
		return err
	}
	if err := s.contacts.SoftDelete(ctx, glassesID, contactID); err != nil {
		return err
	}
	s.deleteImage(ctx, contact.ImageKey)
	return nil
}

// SetSubscription changes the profile's plan. A nil expiry means the plan does not lapse.
func (s *AccountService) SetSubscription(ctx context.Context, glassesID string, req *model.SetSubscriptionRequest) (*model.Glasses, error) {
	if req.MaxContacts <= 0 {
		return nil, model.ErrInvalidQuota
	}
	if err := s.glasses.SetPlan(ctx, nil, glassesID, req.MaxContacts, req.ExpiresAt); err != nil {
		return nil, err
	}
	s.logger.Info("[AccountService] Subscription updated",
		zap.String("glasses_id", glassesID),
		zap.Int("max_contacts", req.MaxContacts),
	)
	return s.glasses.GetByID(ctx, glassesID)
}

func (s *AccountService) ensureGlasses(ctx context.Context, glassesID string) error {
	exists, err := s.glasses.Exists(ctx, glassesID)
	if err != nil {
		return fmt.Errorf("check glasses: %w", err)
	}
	if !exists {
		return model.ErrGlassesNotFound
	}
	return nil
}

func (s *AccountService) deleteImage(ctx context.Context, key *string) {
	if key == nil || *key == "" || s.media == nil {
		return
	}
	if err := s.media.DeleteObject(ctx, *key); err != nil {
		s.logger.Warn("[AccountService] Image not deleted", zap.String("key", *key), zap.Error(err))
	}
}
