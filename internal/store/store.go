// Package store defines the applicant record store shared by all backends.
package store

import (
	"context"

	"bakelite_bot/internal/models"
)

// Store keeps applicant records keyed by Telegram user id.
//
// Upsert creates a record stamped with the current time or replaces every
// mutable field of an existing one; registration time never changes.
// FindByKey returns a nil record and a nil error when nothing is stored for
// the id. SetStatus on an unknown id is a no-op.
type Store interface {
	Upsert(ctx context.Context, userID int64, fields models.ApplicantFields) error
	FindByKey(ctx context.Context, userID int64) (*models.ApplicantRecord, error)
	FindByStatus(ctx context.Context, status models.Status) ([]*models.ApplicantRecord, error)
	ListAll(ctx context.Context) ([]*models.ApplicantRecord, error)
	SetStatus(ctx context.Context, userID int64, status models.Status) error
}

// Backend names accepted by the configuration.
const (
	BackendMongo  = "mongo"
	BackendSheets = "sheets"
	BackendMemory = "memory"
)
