package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roaia/internal/model"
)

var glassesCols = []string{
	"id", "full_name", "age", "gender", "image_url", "image_key", "max_contacts",
	"subscription_expires_at", "created_at",
}

func TestGlassesRepository_GetByID_LoadsDiseases(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGlassesRepository(db)

	mock.ExpectQuery(`FROM glasses WHERE id = \$1`).
		WithArgs("g-1").
		WillReturnRows(sqlmock.NewRows(glassesCols).
			AddRow("g-1", "Ali", 70, "Male", nil, nil, 7, nil, time.Now()))
	mock.ExpectQuery(`SELECT name FROM diseases`).
		WithArgs("g-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Diabetes").AddRow("Glaucoma"))

	g, err := repo.GetByID(context.Background(), "g-1")

	require.NoError(t, err)
	assert.Equal(t, "Ali", g.DisplayName())
	assert.Equal(t, 7, g.MaxContacts)
	assert.Equal(t, []string{"Diabetes", "Glaucoma"}, g.Diseases)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlassesRepository_GetByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGlassesRepository(db)

	mock.ExpectQuery(`FROM glasses`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")

	assert.ErrorIs(t, err, model.ErrGlassesNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlassesRepository_DiseaseDiffNoops(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGlassesRepository(db)

	require.NoError(t, repo.AddDiseases(context.Background(), nil, "g-1", nil))
	require.NoError(t, repo.RemoveDiseases(context.Background(), nil, "g-1", []string{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGlassesRepository_SetPlan(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGlassesRepository(db)

	mock.ExpectExec(`UPDATE glasses SET max_contacts`).
		WithArgs("g-1", 7, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetPlan(context.Background(), nil, "g-1", 7, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
