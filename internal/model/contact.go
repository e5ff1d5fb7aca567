package model

import (
	"errors"
	"time"
)

// Contact is a person known to the glasses wearer. Removal is a soft delete.
type Contact struct {
	ID          int64     `db:"id" json:"id"`
	GlassesID   string    `db:"glasses_id" json:"glasses_id"`
	FullName    string    `db:"full_name" json:"name"`
	Age         *int      `db:"age" json:"age,omitempty"`
	Relation    *string   `db:"relation" json:"relation,omitempty"`
	PhoneNumber *string   `db:"phone_number" json:"phone_number,omitempty"`
	ImageURL    *string   `db:"image_url" json:"image_url,omitempty"`
	ImageKey    *string   `db:"image_key" json:"-"`
	IsDeleted   bool      `db:"is_deleted" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ContactRequest is used to add or modify a contact.
type ContactRequest struct {
	Name        string  `json:"name"`
	Age         *int    `json:"age"`
	Relation    *string `json:"relation"`
	PhoneNumber *string `json:"phone_number"`
	ImageURL    *string `json:"-"`
	ImageKey    *string `json:"-"`
}

// ContactImage pairs a contact name with its image, used for face recognition on the glasses.
type ContactImage struct {
	ID       int64   `db:"id" json:"id"`
	FullName string  `db:"full_name" json:"name"`
	ImageURL *string `db:"image_url" json:"image_url"`
}

var (
	ErrContactNotFound      = errors.New("contact not found")
	ErrContactQuotaExceeded = errors.New("the number of contacts exceeds the limit of your current plan")
	ErrContactNameRequired  = errors.New("contact name is required")
)
