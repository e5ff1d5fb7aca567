package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"roaia/internal/model"
)

func TestUserService_CreateUser(t *testing.T) {
	f := newUserFixture(t)

	info, err := f.svc.CreateUser(context.Background(), &model.CreateUserRequest{
		FirstName: "Bao",
		LastName:  "Tran",
		Username:  " bao ",
		Email:     "bao@example.com",
		Password:  "Str0ng!Pass",
		Roles:     []string{model.RoleAdmin, model.RoleUser, model.RoleAdmin},
	})
	require.NoError(t, err)

	require.Len(t, f.users.created, 1)
	created := f.users.created[0]
	assert.Equal(t, "bao", created.Username)
	assert.True(t, created.EmailConfirmed)
	assert.Nil(t, created.GlassesID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("Str0ng!Pass")))
	assert.Equal(t, [][]string{{model.RoleAdmin, model.RoleUser}}, f.users.replacedRoles)
	assert.Equal(t, []string{model.RoleAdmin, model.RoleUser}, info.Roles)
	assert.Empty(t, f.emails.sent)
}

func TestUserService_CreateUser_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *userFixture, req *model.CreateUserRequest)
		wantErr error
	}{
		{
			name:    "unknown role",
			mutate:  func(f *userFixture, req *model.CreateUserRequest) { req.Roles = []string{"Root"} },
			wantErr: model.ErrInvalidRole,
		},
		{
			name:    "weak password",
			mutate:  func(f *userFixture, req *model.CreateUserRequest) { req.Password = "short" },
			wantErr: model.ErrWeakPassword,
		},
		{
			name: "email taken",
			mutate: func(f *userFixture, req *model.CreateUserRequest) {
				f.users.existsByEmailFn = func(ctx context.Context, email string) (bool, error) { return true, nil }
			},
			wantErr: model.ErrEmailExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUserFixture(t)
			req := &model.CreateUserRequest{
				FirstName: "Bao", LastName: "Tran", Username: "bao", Email: "bao@example.com", Password: "Str0ng!Pass",
			}
			tt.mutate(f, req)

			_, err := f.svc.CreateUser(context.Background(), req)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.users.created)
		})
	}
}

func TestUserService_CreateUser_DefaultsToUserRole(t *testing.T) {
	f := newUserFixture(t)

	info, err := f.svc.CreateUser(context.Background(), &model.CreateUserRequest{
		FirstName: "Bao", LastName: "Tran", Username: "bao", Email: "bao@example.com", Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleUser}, info.Roles)
}

func TestUserService_EditUser(t *testing.T) {
	existing := func() *model.User {
		return &model.User{ID: "user-1", FirstName: "Ann", LastName: "Lee", Username: "ann", Email: "ann@example.com"}
	}

	t.Run("replaces differing roles", func(t *testing.T) {
		f := newUserFixture(t)
		f.users.getByIDFn = func(ctx context.Context, id string) (*model.User, error) { return existing(), nil }

		info, err := f.svc.EditUser(context.Background(), "user-1", &model.EditUserRequest{
			FirstName: "Anna", LastName: "Lee", Username: "ann", Email: "anna@example.com",
			Roles: []string{model.RoleUser, model.RoleAdmin},
		})
		require.NoError(t, err)

		require.Len(t, f.users.updated, 1)
		assert.Equal(t, "Anna", f.users.updated[0].FirstName)
		assert.Equal(t, "anna@example.com", f.users.updated[0].Email)
		assert.Equal(t, [][]string{{model.RoleAdmin, model.RoleUser}}, f.users.replacedRoles)
		assert.Equal(t, []string{model.RoleAdmin, model.RoleUser}, info.Roles)
	})

	t.Run("same roles are left alone", func(t *testing.T) {
		f := newUserFixture(t)
		f.users.getByIDFn = func(ctx context.Context, id string) (*model.User, error) { return existing(), nil }

		_, err := f.svc.EditUser(context.Background(), "user-1", &model.EditUserRequest{
			FirstName: "Ann", LastName: "Lee", Username: "ann", Email: "ann@example.com",
			Roles: []string{model.RoleUser},
		})
		require.NoError(t, err)
		assert.Empty(t, f.users.replacedRoles)
	})

	t.Run("username taken", func(t *testing.T) {
		f := newUserFixture(t)
		f.users.getByIDFn = func(ctx context.Context, id string) (*model.User, error) { return existing(), nil }
		f.users.existsByUsernameFn = func(ctx context.Context, username string) (bool, error) { return true, nil }

		_, err := f.svc.EditUser(context.Background(), "user-1", &model.EditUserRequest{
			FirstName: "Ann", LastName: "Lee", Username: "bob", Email: "ann@example.com",
		})
		assert.ErrorIs(t, err, model.ErrUsernameExists)
		assert.Empty(t, f.users.updated)
	})

	t.Run("missing user", func(t *testing.T) {
		f := newUserFixture(t)
		_, err := f.svc.EditUser(context.Background(), "ghost", &model.EditUserRequest{})
		assert.ErrorIs(t, err, model.ErrUserNotFound)
	})
}

func TestUserService_ToggleStatus(t *testing.T) {
	f := newUserFixture(t)
	require.NoError(t, f.tokens.Create(context.Background(), nil, &model.RefreshToken{
		UserID: "user-1", Token: "rt-1", ExpiresOn: f.clock.Add(time.Hour), CreatedOn: f.clock,
	}))
	deleted := false
	f.users.toggleDeletedFn = func(ctx context.Context, userID string) (*model.StatusResult, error) {
		deleted = !deleted
		return &model.StatusResult{UserID: userID, IsDeleted: deleted, UpdatedAt: f.clock}, nil
	}

	status, err := f.svc.ToggleStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, status.IsDeleted)
	_, err = f.tokens.FindByToken(context.Background(), "rt-1")
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	status, err = f.svc.ToggleStatus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, status.IsDeleted)
}

func TestUserService_ToggleStatus_NotFound(t *testing.T) {
	f := newUserFixture(t)
	_, err := f.svc.ToggleStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestUserService_AdminResetPassword(t *testing.T) {
	f := newUserFixture(t)

	err := f.svc.AdminResetPassword(context.Background(), "user-1", &model.AdminResetPasswordRequest{NewPassword: "weak"})
	assert.ErrorIs(t, err, model.ErrWeakPassword)

	require.NoError(t, f.svc.AdminResetPassword(context.Background(), "user-1",
		&model.AdminResetPasswordRequest{NewPassword: "N3w!Password"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.users.passwordHash), []byte("N3w!Password")))
}

func TestUserService_Unlock(t *testing.T) {
	f := newUserFixture(t)
	require.NoError(t, f.svc.Unlock(context.Background(), "user-1"))
	assert.Equal(t, []string{"user-1"}, f.users.clearedLockouts)
}

func TestUserService_SendMailNews(t *testing.T) {
	f := newUserFixture(t)
	f.users.subscribedEmails = []string{"a@example.com", "b@example.com"}

	res, err := f.svc.SendMailNews(context.Background(), &model.MailNewsRequest{
		Subject:     "Roaia update",
		HTMLMessage: "<p>New voice commands</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Recipients)
	require.Len(t, f.emails.sent, 2)
	assert.Equal(t, "a@example.com", f.emails.sent[0].To)
	assert.Equal(t, "Roaia update", f.emails.sent[1].Subject)
	assert.Contains(t, f.emails.sent[1].Body, "<p>New voice commands</p>")
}

func TestUserService_SendMailNews_Rejections(t *testing.T) {
	f := newUserFixture(t)

	_, err := f.svc.SendMailNews(context.Background(), &model.MailNewsRequest{HTMLMessage: "<p>x</p>"})
	assert.ErrorIs(t, err, model.ErrSubjectRequired)

	_, err = f.svc.SendMailNews(context.Background(), &model.MailNewsRequest{Subject: "s"})
	assert.ErrorIs(t, err, model.ErrMessageRequired)

	_, err = f.svc.SendMailNews(context.Background(), &model.MailNewsRequest{Subject: "s", HTMLMessage: "<p>x</p>"})
	assert.ErrorIs(t, err, model.ErrNoSubscribers)
}

func TestUserService_SendMailNews_QueueDown(t *testing.T) {
	f := newUserFixture(t)
	f.users.subscribedEmails = []string{"a@example.com"}
	f.emails.err = errors.New("redis down")

	_, err := f.svc.SendMailNews(context.Background(), &model.MailNewsRequest{Subject: "s", HTMLMessage: "<p>x</p>"})
	assert.Error(t, err)
}

func TestUserService_UnsubscribeMailNews(t *testing.T) {
	f := newUserFixture(t)
	f.users.subscribedEmails = []string{"a@example.com"}

	require.NoError(t, f.svc.UnsubscribeMailNews(context.Background(), " a@example.com "))
	assert.Equal(t, []string{"a@example.com"}, f.users.unsubscribed)

	err := f.svc.UnsubscribeMailNews(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}
