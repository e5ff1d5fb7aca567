package service

import (
	"context"
	"fmt"
	"html/template"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"roaia/internal/model"
)

// Administrator operations behind the dashboard routes.

// CreateUser adds a confirmed account with the given roles, User when none are given.
func (s *UserService) CreateUser(ctx context.Context, req *model.CreateUserRequest) (*model.UserInfo, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateName("first_name", req.FirstName); err != nil {
		return nil, err
	}
	if err := validateName("last_name", req.LastName); err != nil {
		return nil, err
	}
	if err := validateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	roles, err := normalizeRoles(req.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []string{model.RoleUser}
	}
	if err := s.checkUnique(ctx, req.Username, req.Email, nil); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:             uuid.NewString(),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   string(hashedPassword),
		EmailConfirmed: true,
		IsAgree:        true,
		IsSubscribed:   true,
		Roles:          roles,
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, user); err != nil {
			return err
		}
		return s.repo.ReplaceRoles(ctx, tx, user.ID, roles)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("[UserService] CreateUser OK", zap.String("user_id", user.ID), zap.Strings("roles", roles))
	return toUserInfo(user), nil
}

// EditUser replaces the profile fields. A non-nil Roles replaces the role set
// when it differs from the current one.
func (s *UserService) EditUser(ctx context.Context, userID string, req *model.EditUserRequest) (*model.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := validateName("first_name", req.FirstName); err != nil {
		return nil, err
	}
	if err := validateName("last_name", req.LastName); err != nil {
		return nil, err
	}
	var roles []string
	if req.Roles != nil {
		if roles, err = normalizeRoles(req.Roles); err != nil {
			return nil, err
		}
	}

	username := strings.TrimSpace(req.Username)
	if !strings.EqualFold(username, user.Username) {
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		exists, err := s.repo.ExistsByUsername(ctx, username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if exists {
			return nil, model.ErrUsernameExists
		}
	}
	email := strings.TrimSpace(req.Email)
	if !strings.EqualFold(email, user.Email) {
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		exists, err := s.repo.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return nil, model.ErrEmailExists
		}
	}

	user.FirstName = strings.TrimSpace(req.FirstName)
	user.LastName = strings.TrimSpace(req.LastName)
	user.Username = username
	user.Email = email
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	current, err := s.repo.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if req.Roles != nil && !slices.Equal(current, roles) {
		if err := s.repo.ReplaceRoles(ctx, nil, user.ID, roles); err != nil {
			return nil, err
		}
		s.logger.Info("[UserService] Roles replaced", zap.String("user_id", user.ID), zap.Strings("roles", roles))
		current = roles
	}
	user.Roles = current
	return toUserInfo(user), nil
}

// ToggleStatus deactivates or reactivates an account. Deactivation also
// revokes the account's refresh tokens so no new access tokens are issued.
func (s *UserService) ToggleStatus(ctx context.Context, userID string) (*model.StatusResult, error) {
	status, err := s.repo.ToggleDeleted(ctx, userID)
	if err != nil {
		return nil, err
	}
	if status.IsDeleted {
		n, err := s.tokens.DeleteAllForUser(ctx, nil, userID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("[UserService] Account deactivated", zap.String("user_id", userID), zap.Int64("refresh_tokens", n))
	} else {
		s.logger.Info("[UserService] Account reactivated", zap.String("user_id", userID))
	}
	return status, nil
}

// AdminResetPassword sets a password without the OTP flow.
func (s *UserService) AdminResetPassword(ctx context.Context, userID string, req *model.AdminResetPasswordRequest) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, userID, req.NewPassword)
}

// Unlock lifts a lockout and resets the failed login count.
func (s *UserService) Unlock(ctx context.Context, userID string) error {
	if err := s.repo.ClearLockout(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("[UserService] Unlock OK", zap.String("user_id", userID))
	return nil
}

// SendMailNews queues the newsletter for every subscribed, confirmed and
// active account. Addresses that fail to queue are logged and skipped.
func (s *UserService) SendMailNews(ctx context.Context, req *model.MailNewsRequest) (*model.MailNewsResult, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, model.ErrSubjectRequired
	}
	if strings.TrimSpace(req.HTMLMessage) == "" {
		return nil, model.ErrMessageRequired
	}

	recipients, err := s.repo.ListSubscribedEmails(ctx)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, model.ErrNoSubscribers
	}

	body, err := RenderEmail(EmailContent{Header: subject, Body: template.HTML(req.HTMLMessage)})
	if err != nil {
		return nil, err
	}

	queued := 0
	var lastErr error
	for _, to := range recipients {
		if err := s.emails.PublishEmail(ctx, to, subject, body); err != nil {
			s.logger.Warn("[UserService] Mail news not queued", zap.String("to", to), zap.Error(err))
			lastErr = err
			continue
		}
		queued++
	}
	if queued == 0 {
		return nil, fmt.Errorf("failed to queue mail news: %w", lastErr)
	}

	s.logger.Info("[UserService] SendMailNews OK", zap.Int("queued", queued), zap.Int("recipients", len(recipients)))
	return &model.MailNewsResult{Recipients: queued}, nil
}

// UnsubscribeMailNews stops newsletters for the account owning email.
func (s *UserService) UnsubscribeMailNews(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	return s.repo.SetSubscribedByEmail(ctx, email, false)
}

// normalizeRoles rejects unknown roles and returns the distinct roles sorted.
func normalizeRoles(roles []string) ([]string, error) {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if !model.IsKnownRole(r) {
			return nil, model.ErrInvalidRole
		}
		out = append(out, r)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
