package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"roaia/internal/model"
)

const contactColumns = `id, glasses_id, full_name, age, relation, phone_number, image_url, image_key,
	is_deleted, created_at`

type contactRepository struct {
	db *sqlx.DB
}

func NewContactRepository(db *sqlx.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) CountActive(ctx context.Context, tx *sqlx.Tx, glassesID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM contacts WHERE glasses_id = $1 AND NOT is_deleted`
	if err := pick(r.db, tx).GetContext(ctx, &count, query, glassesID); err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return count, nil
}

func (r *contactRepository) ListActive(ctx context.Context, glassesID string) ([]model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE glasses_id = $1 AND NOT is_deleted
		ORDER BY id`

	contacts := []model.Contact{}
	if err := r.db.SelectContext(ctx, &contacts, query, glassesID); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

func (r *contactRepository) ListImages(ctx context.Context, glassesID string) ([]model.ContactImage, error) {
	query := `SELECT id, full_name, image_url FROM contacts
		WHERE glasses_id = $1 AND NOT is_deleted AND image_url IS NOT NULL
		ORDER BY id`

	images := []model.ContactImage{}
	if err := r.db.SelectContext(ctx, &images, query, glassesID); err != nil {
		return nil, fmt.Errorf("list contact images: %w", err)
	}
	return images, nil
}

func (r *contactRepository) GetActive(ctx context.Context, glassesID string, id int64) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
		WHERE glasses_id = $1 AND id = $2 AND NOT is_deleted`

	var c model.Contact
	if err := r.db.GetContext(ctx, &c, query, glassesID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrContactNotFound
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}

func (r *contactRepository) Create(ctx context.Context, tx *sqlx.Tx, c *model.Contact) error {
	query := `
		INSERT INTO contacts (glasses_id, full_name, age, relation, phone_number, image_url, image_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := pick(r.db, tx).QueryRowxContext(ctx, query,
		c.GlassesID, c.FullName, c.Age, c.Relation, c.PhoneNumber, c.ImageURL, c.ImageKey,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (r *contactRepository) Update(ctx context.Context, c *model.Contact) error {
	query := `
		UPDATE contacts
		SET full_name = $3, age = $4, relation = $5, phone_number = $6, image_url = $7, image_key = $8
		WHERE glasses_id = $1 AND id = $2 AND NOT is_deleted
	`
	res, err := r.db.ExecContext(ctx, query,
		c.GlassesID, c.ID, c.FullName, c.Age, c.Relation, c.PhoneNumber, c.ImageURL, c.ImageKey,
	)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrContactNotFound
	}
	return nil
}

func (r *contactRepository) SoftDelete(ctx context.Context, glassesID string, id int64) error {
	query := `UPDATE contacts SET is_deleted = TRUE WHERE glasses_id = $1 AND id = $2 AND NOT is_deleted`
	res, err := r.db.ExecContext(ctx, query, glassesID, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrContactNotFound
	}
	return nil
}

func (r *contactRepository) SoftDeleteOverflow(ctx context.Context, tx *sqlx.Tx, glassesID string, keep int) (int64, error) {
	query := `
		UPDATE contacts SET is_deleted = TRUE
		WHERE id IN (
			SELECT id FROM contacts
			WHERE glasses_id = $1 AND NOT is_deleted
			ORDER BY id
			OFFSET $2
		)
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, glassesID, keep)
	if err != nil {
		return 0, fmt.Errorf("trim contacts: %w", err)
	}
	return res.RowsAffected()
}
