// Package store holds the location directory and the durable snapshot store.
package store

import (
	"context"
	"errors"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

var (
	// ErrStore wraps any failure of the durable backend.
	ErrStore = errors.New("store error")
	// ErrLocationNotFound is returned when a location id is not registered.
	ErrLocationNotFound = errors.New("location not found")
)

// LocationDirectory is the read-only source of registered locations.
type LocationDirectory interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
	GetLocation(ctx context.Context, id int64) (models.Location, error)
}

// SnapshotStore persists the latest snapshot per location and the forecast audit trail.
type SnapshotStore interface {
	// GetSnapshot returns ok=false with a nil error when no snapshot exists.
	GetSnapshot(ctx context.Context, locationID int64) (models.ForecastSnapshot, bool, error)
	UpsertSnapshot(ctx context.Context, locationID int64, snap models.ForecastSnapshot) error
	AppendForecastAudit(ctx context.Context, rec models.AuditRecord) error
}

// Store is a backend that serves both roles.
type Store interface {
	LocationDirectory
	SnapshotStore
	Ping(ctx context.Context) error
	Close()
}
