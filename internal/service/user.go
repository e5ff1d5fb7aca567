package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"html/template"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"roaia/internal/model"
	"roaia/internal/repository"
)

// EmailQueue hands emails to the background worker.
type EmailQueue interface {
	PublishEmail(ctx context.Context, to, subject, htmlBody string) error
}

// ObjectDeleter removes stored media by key.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// UserConfig holds account policy settings. Zero lockout values fall back
// to five attempts and a two minute lockout.
type UserConfig struct {
	OTPTTL    time.Duration
	AppDomain string

	MaxFailedLogins int
	LockoutDuration time.Duration
	MaxOTPAttempts  int
}

// UserService handles registration, login and account maintenance.
type UserService struct {
	cfg      UserConfig
	repo     repository.UserRepository
	glasses  repository.GlassesRepository
	devices  repository.DeviceTokenRepository
	tokens   repository.RefreshTokenRepository
	tx       repository.Transactor
	sessions *SessionManager
	emails   EmailQueue
	media    ObjectDeleter
	logger   *zap.Logger
	now      func() time.Time
}

func NewUserService(
	cfg UserConfig,
	repo repository.UserRepository,
	glasses repository.GlassesRepository,
	devices repository.DeviceTokenRepository,
	tokens repository.RefreshTokenRepository,
	tx repository.Transactor,
	sessions *SessionManager,
	emails EmailQueue,
	media ObjectDeleter,
	logger *zap.Logger,
) *UserService {
	if cfg.MaxFailedLogins <= 0 {
		cfg.MaxFailedLogins = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 2 * time.Minute
	}
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = 5
	}
	return &UserService{
		cfg:      cfg,
		repo:     repo,
		glasses:  glasses,
		devices:  devices,
		tokens:   tokens,
		tx:       tx,
		sessions: sessions,
		emails:   emails,
		media:    media,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates a caretaker account linked to an existing pair of glasses,
// grants the User role, emails a confirmation code and opens a session.
func (s *UserService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResult, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if !req.IsAgree {
		return nil, model.ErrTermsNotAccepted
	}
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
	if err := validatePhone(req.PhoneNumber); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	if (req.ImageURL == nil) != (req.ImageKey == nil) {
		return nil, &ValidationError{Field: "image", Reason: "url and key must both be provided or both omitted"}
	}

	if err := s.checkUnique(ctx, req.Username, req.Email, req.PhoneNumber); err != nil {
		return nil, err
	}

	exists, err := s.glasses.Exists(ctx, req.GlassesID)
	if err != nil {
		return nil, fmt.Errorf("failed to check glasses: %w", err)
	}
	if !exists {
		return nil, model.ErrGlassesNotFound
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	glassesID := req.GlassesID
	user := &model.User{
		ID:           uuid.NewString(),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Username:     req.Username,
		Email:        req.Email,
		PhoneNumber:  emptyToNil(req.PhoneNumber),
		PasswordHash: string(hashedPassword),
		GlassesID:    &glassesID,
		ImageURL:     req.ImageURL,
		ImageKey:     req.ImageKey,
		IsAgree:      true,
		Roles:        []string{model.RoleUser},
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, user); err != nil {
			return err
		}
		return s.repo.AddRole(ctx, tx, user.ID, model.RoleUser)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("[UserService] Register OK", zap.String("user_id", user.ID), zap.String("glasses_id", glassesID))

	if err := s.sendOTP(ctx, user); err != nil {
		// The account exists; the user can request a new code.
		s.logger.Warn("[UserService] Confirmation email not queued", zap.String("user_id", user.ID), zap.Error(err))
	}

	access, err := s.sessions.IssueAccessToken(ctx, user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sessions.GetOrRotateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return buildAuthResult(user, access, refresh), nil
}

func (s *UserService) checkUnique(ctx context.Context, username, email string, phone *string) error {
	exists, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return model.ErrUsernameExists
	}

	exists, err = s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return model.ErrEmailExists
	}

	if phone != nil && *phone != "" {
		exists, err = s.repo.ExistsByPhone(ctx, *phone)
		if err != nil {
			return fmt.Errorf("failed to check phone: %w", err)
		}
		if exists {
			return model.ErrPhoneExists
		}
	}
	return nil
}

// Login authenticates by username, email or phone, registers the device token
// once and returns an access token plus the user's active refresh token.
// Repeated wrong passwords lock the account for LockoutDuration.
func (s *UserService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResult, error) {
	user, err := s.repo.GetByIdentifier(ctx, strings.TrimSpace(req.Identifier))
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if user.LockoutEnd != nil && s.now().Before(*user.LockoutEnd) {
		return nil, model.ErrAccountLocked
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.loginFailed(ctx, user)
	}
	if user.AccessFailedCount > 0 || user.LockoutEnd != nil {
		if err := s.repo.ClearLockout(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	if !user.EmailConfirmed {
		return nil, model.ErrEmailNotConfirmed
	}

	if req.DeviceToken != nil && strings.TrimSpace(*req.DeviceToken) != "" {
		created, err := s.devices.CreateIfNotExists(ctx, strings.TrimSpace(*req.DeviceToken), user.GlassesID, user.ID)
		if err != nil {
			return nil, err
		}
		if created {
			s.logger.Info("[UserService] Device token registered", zap.String("user_id", user.ID))
		}
	}

	access, err := s.sessions.IssueAccessToken(ctx, user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sessions.GetOrRotateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return buildAuthResult(user, access, refresh), nil
}

func (s *UserService) loginFailed(ctx context.Context, user *model.User) error {
	lockoutEnd, err := s.repo.RecordLoginFailure(ctx, user.ID, s.cfg.MaxFailedLogins, s.now().Add(s.cfg.LockoutDuration))
	if err != nil {
		return err
	}
	if lockoutEnd != nil && s.now().Before(*lockoutEnd) {
		s.logger.Warn("[UserService] Account locked", zap.String("user_id", user.ID), zap.Time("until", *lockoutEnd))
		return model.ErrAccountLocked
	}
	return model.ErrInvalidCredentials
}

// ModifyUser applies the non-nil fields of req. A replaced image is removed from storage.
func (s *UserService) ModifyUser(ctx context.Context, userID string, req *model.ModifyUserRequest) (*model.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		if err := validateName("first_name", *req.FirstName); err != nil {
			return nil, err
		}
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		if err := validateName("last_name", *req.LastName); err != nil {
			return nil, err
		}
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Username != nil && !strings.EqualFold(*req.Username, user.Username) {
		username := strings.TrimSpace(*req.Username)
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
		user.Username = username
	}
	if req.PhoneNumber != nil && (user.PhoneNumber == nil || *req.PhoneNumber != *user.PhoneNumber) {
		if err := validatePhone(req.PhoneNumber); err != nil {
			return nil, err
		}
		if *req.PhoneNumber != "" {
			exists, err := s.repo.ExistsByPhone(ctx, *req.PhoneNumber)
			if err != nil {
				return nil, fmt.Errorf("failed to check phone: %w", err)
			}
			if exists {
				return nil, model.ErrPhoneExists
			}
		}
		user.PhoneNumber = emptyToNil(req.PhoneNumber)
	}

	var oldImageKey *string
	if req.ImageURL != nil && req.ImageKey != nil {
		oldImageKey = user.ImageKey
		user.ImageURL = req.ImageURL
		user.ImageKey = req.ImageKey
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	if oldImageKey != nil && s.media != nil {
		if err := s.media.DeleteObject(ctx, *oldImageKey); err != nil {
			s.logger.Warn("[UserService] Old image not deleted", zap.String("key", *oldImageKey), zap.Error(err))
		}
	}

	roles, err := s.repo.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return toUserInfo(user), nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID string, req *model.ChangePasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return model.ErrPasswordMismatch
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return model.ErrInvalidCredentials
	}

	return s.setPassword(ctx, user.ID, req.NewPassword)
}

// SendOTP emails a fresh six digit code to the account matching identifier.
func (s *UserService) SendOTP(ctx context.Context, identifier string) error {
	user, err := s.repo.GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		return err
	}
	return s.sendOTP(ctx, user)
}

func (s *UserService) sendOTP(ctx context.Context, user *model.User) error {
	code, err := generateOTP()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.cfg.OTPTTL)
	if err := s.repo.SetOTP(ctx, user.ID, &code, &expiresAt); err != nil {
		return err
	}

	subject, body, err := s.otpEmail(user, code)
	if err != nil {
		return err
	}
	return s.emails.PublishEmail(ctx, user.Email, subject, body)
}

func (s *UserService) otpEmail(user *model.User, code string) (string, string, error) {
	minutes := int(s.cfg.OTPTTL.Minutes())
	codeHTML := fmt.Sprintf(`<b style="padding:12px 30px;border:1px solid #1877f2;background:#e7f3ff;font-size:20px;">%s</b>`, code)
	warning := template.HTML("Do not share this code with anyone. Roaia will never ask you for your password or code.")

	content := EmailContent{Warning: warning}
	var subject string
	if !user.EmailConfirmed {
		subject = fmt.Sprintf("OTP-%s is your Roaia confirmation code", code)
		content.Header = fmt.Sprintf("Hey %s, thanks for joining us!", user.FirstName)
		content.Body = template.HTML(fmt.Sprintf(
			"To verify your email address, please use this code within %d minutes:<br/><br/>%s", minutes, codeHTML))
	} else {
		subject = fmt.Sprintf("OTP-%s is your Roaia reset password code", code)
		content.Header = fmt.Sprintf("Hey %s,", user.FirstName)
		content.Body = template.HTML(fmt.Sprintf(
			"To reset your password, please use this code within %d minutes:<br/><br/>%s", minutes, codeHTML))
		if s.cfg.AppDomain != "" {
			content.URL = strings.TrimSuffix(s.cfg.AppDomain, "/") + "/reset-password"
			content.LinkTitle = "Reset Password"
		}
	}

	body, err := RenderEmail(content)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// VerifyOTP confirms the account's email when the code matches and is unexpired.
func (s *UserService) VerifyOTP(ctx context.Context, req *model.VerifyOTPRequest) error {
	user, err := s.repo.GetByIdentifier(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return err
	}
	if err := s.checkOTP(ctx, user, req.OTPCode); err != nil {
		return err
	}
	// Confirming also clears the code.
	return s.repo.ConfirmEmail(ctx, user.ID)
}

// ResetPassword sets a new password after an OTP check and clears the code.
func (s *UserService) ResetPassword(ctx context.Context, req *model.ResetPasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return model.ErrPasswordMismatch
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	user, err := s.repo.GetByIdentifier(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		return err
	}
	if err := s.checkOTP(ctx, user, req.OTPCode); err != nil {
		return err
	}

	if err := s.setPassword(ctx, user.ID, req.NewPassword); err != nil {
		return err
	}
	return s.repo.SetOTP(ctx, user.ID, nil, nil)
}

// checkOTP counts every wrong guess; after MaxOTPAttempts the code is discarded.
func (s *UserService) checkOTP(ctx context.Context, user *model.User, code string) error {
	if user.OTPCode == nil {
		return model.ErrInvalidOTP
	}
	if subtle.ConstantTimeCompare([]byte(*user.OTPCode), []byte(code)) != 1 {
		attempts, err := s.repo.RecordOTPFailure(ctx, user.ID, s.cfg.MaxOTPAttempts)
		if err != nil {
			return err
		}
		if attempts >= s.cfg.MaxOTPAttempts {
			s.logger.Warn("[UserService] OTP discarded", zap.String("user_id", user.ID), zap.Int("attempts", attempts))
			return model.ErrOTPAttemptsExceeded
		}
		return model.ErrInvalidOTP
	}
	if user.OTPExpiresAt == nil || !s.now().Before(*user.OTPExpiresAt) {
		return model.ErrOTPExpired
	}
	return nil
}

func (s *UserService) setPassword(ctx context.Context, userID, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, string(hashed))
}

// AddRole grants role to a user.
func (s *UserService) AddRole(ctx context.Context, req *model.AddRoleRequest) error {
	if !model.IsKnownRole(req.Role) {
		return model.ErrInvalidRole
	}
	if _, err := s.repo.GetByID(ctx, req.UserID); err != nil {
		return err
	}
	return s.repo.AddRole(ctx, nil, req.UserID, req.Role)
}

func (s *UserService) GetUserInfo(ctx context.Context, userID string) (*model.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.repo.GetRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	return toUserInfo(user), nil
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]model.UserInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]model.UserInfo, 0, len(users))
	for i := range users {
		roles, err := s.repo.GetRoles(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
		users[i].Roles = roles
		out = append(out, *toUserInfo(&users[i]))
	}
	return out, nil
}

// DeleteAccount hard-deletes the user together with the device tokens and
// refresh tokens it owns. The glasses profile is shared and is kept.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	var devices, tokens int64
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if devices, err = s.devices.DeleteAllForUser(ctx, tx, userID); err != nil {
			return err
		}
		if tokens, err = s.tokens.DeleteAllForUser(ctx, tx, userID); err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, userID)
	})
	if err != nil {
		return err
	}

	if user.ImageKey != nil && s.media != nil {
		if err := s.media.DeleteObject(ctx, *user.ImageKey); err != nil {
			s.logger.Warn("[UserService] Image not deleted", zap.String("key", *user.ImageKey), zap.Error(err))
		}
	}

	s.logger.Info("[UserService] DeleteAccount OK",
		zap.String("user_id", userID),
		zap.Int64("device_tokens", devices),
		zap.Int64("refresh_tokens", tokens),
	)
	return nil
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func toUserInfo(u *model.User) *model.UserInfo {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return &model.UserInfo{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Username:    u.Username,
		Email:       u.Email,
		GlassesID:   u.GlassesID,
		ImageURL:    u.ImageURL,
		PhoneNumber: u.PhoneNumber,
		IsDeleted:   u.IsDeleted,
		LockoutEnd:  u.LockoutEnd,
		Roles:       roles,
	}
}
