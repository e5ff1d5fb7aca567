package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"roaia/internal/model"
)

const glassesColumns = `id, full_name, age, gender, image_url, image_key, max_contacts,
	subscription_expires_at, created_at`

type glassesRepository struct {
	db *sqlx.DB
}

func NewGlassesRepository(db *sqlx.DB) GlassesRepository {
	return &glassesRepository{db: db}
}

func (r *glassesRepository) Create(ctx context.Context, g *model.Glasses) error {
	query := `
		INSERT INTO glasses (id, max_contacts)
		VALUES ($1, $2)
		RETURNING created_at
	`
	if err := r.db.QueryRowxContext(ctx, query, g.ID, g.MaxContacts).Scan(&g.CreatedAt); err != nil {
		return fmt.Errorf("insert glasses: %w", err)
	}
	return nil
}

func (r *glassesRepository) GetByID(ctx context.Context, id string) (*model.Glasses, error) {
	g, err := r.get(ctx, r.db, `SELECT `+glassesColumns+` FROM glasses WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}

	diseases, err := r.Diseases(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	g.Diseases = diseases
	return g, nil
}

func (r *glassesRepository) LockForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Glasses, error) {
	return r.get(ctx, pick(r.db, tx), `SELECT `+glassesColumns+` FROM glasses WHERE id = $1 FOR UPDATE`, id)
}

func (r *glassesRepository) get(ctx context.Context, q queryer, query, id string) (*model.Glasses, error) {
	var g model.Glasses
	err := q.GetContext(ctx, &g, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrGlassesNotFound
		}
		return nil, fmt.Errorf("get glasses: %w", err)
	}
	return &g, nil
}

func (r *glassesRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM glasses WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check glasses: %w", err)
	}
	return exists, nil
}

func (r *glassesRepository) Update(ctx context.Context, tx *sqlx.Tx, g *model.Glasses) error {
	query := `
		UPDATE glasses
		SET full_name = $2, age = $3, gender = $4, image_url = $5, image_key = $6
		WHERE id = $1
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, g.ID, g.FullName, g.Age, g.Gender, g.ImageURL, g.ImageKey)
	if err != nil {
		return fmt.Errorf("update glasses: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrGlassesNotFound
	}
	return nil
}

func (r *glassesRepository) Diseases(ctx context.Context, tx *sqlx.Tx, id string) ([]string, error) {
	names := []string{}
	err := pick(r.db, tx).SelectContext(ctx, &names, `SELECT name FROM diseases WHERE glasses_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get diseases: %w", err)
	}
	return names, nil
}

func (r *glassesRepository) AddDiseases(ctx context.Context, tx *sqlx.Tx, id string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	query := `
		INSERT INTO diseases (glasses_id, name)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (glasses_id, name) DO NOTHING
	`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, id, pq.Array(names)); err != nil {
		return fmt.Errorf("add diseases: %w", err)
	}
	return nil
}

func (r *glassesRepository) RemoveDiseases(ctx context.Context, tx *sqlx.Tx, id string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	query := `DELETE FROM diseases WHERE glasses_id = $1 AND name = ANY($2)`
	if _, err := pick(r.db, tx).ExecContext(ctx, query, id, pq.Array(names)); err != nil {
		return fmt.Errorf("remove diseases: %w", err)
	}
	return nil
}

// SetPlan changes the contact quota and subscription expiry (nil clears it).
func (r *glassesRepository) SetPlan(ctx context.Context, tx *sqlx.Tx, id string, maxContacts int, expiresAt *time.Time) error {
	query := `UPDATE glasses SET max_contacts = $2, subscription_expires_at = $3 WHERE id = $1`
	res, err := pick(r.db, tx).ExecContext(ctx, query, id, maxContacts, expiresAt)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrGlassesNotFound
	}
	return nil
}
