package model

import (
	"errors"
	"time"
)

// GPSLocation is a position reported by a pair of glasses.
type GPSLocation struct {
	GlassesID  string    `json:"glasses_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Validate checks coordinate ranges and the glasses id.
func (l GPSLocation) Validate() error {
	if l.GlassesID == "" {
		return ErrGlassesIDRequired
	}
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

var (
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrGlassesIDRequired  = errors.New("glasses id is required")
	ErrLocationNotFound   = errors.New("no known location")
)
