package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTokenRepository_CreateIfNotExists(t *testing.T) {
	glassesID := "g-1"

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"new token inserted", 1, true},
		{"existing token kept", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewDeviceTokenRepository(db)

			mock.ExpectExec(`ON CONFLICT \(token\) DO NOTHING`).
				WithArgs("tok", glassesID, "user-1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			created, err := repo.CreateIfNotExists(context.Background(), "tok", &glassesID, "user-1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, created)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeviceTokenRepository_TokensByGlasses(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeviceTokenRepository(db)

	mock.ExpectQuery(`SELECT token`).
		WithArgs("g-1").
		WillReturnRows(sqlmock.NewRows([]string{"token"}).AddRow("a").AddRow("b"))

	tokens, err := repo.TokensByGlasses(context.Background(), "g-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tokens)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceTokenRepository_DeleteByTokens(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeviceTokenRepository(db)

	mock.ExpectExec(`DELETE FROM device_tokens WHERE token = ANY`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteByTokens(context.Background(), []string{"b", "c"})

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceTokenRepository_DeleteByTokens_Empty(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeviceTokenRepository(db)

	n, err := repo.DeleteByTokens(context.Background(), nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceTokenRepository_DeleteForUser_ScopedToOwner(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeviceTokenRepository(db)

	mock.ExpectExec(`DELETE FROM device_tokens WHERE token = \$1 AND user_id = \$2`).
		WithArgs("tok", "someone-else").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteForUser(context.Background(), "tok", "someone-else")

	require.NoError(t, err)
	assert.False(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
