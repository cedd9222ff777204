// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"fundsphere/internal/models"

	"gorm.io/gorm"
)

// PublishedFilter narrows published listings. Now is the reference time for
// the deadline clause; IgnoreDeadline drops that clause.
type PublishedFilter struct {
	Now            time.Time
	CreatorID      string
	IgnoreDeadline bool
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores bundles the repositories backing one store driver.
type Stores struct {
	Users     UserRepository
	Campaigns CampaignRepository
	Audit     AuditRepository
	Intents   IntentRepository
	Cascade   CascadeDeleter
	Health    Pinger
}

// NewGormStores returns the relational implementation of every repository.
func NewGormStores(db *gorm.DB) *Stores {
	return &Stores{
		Users:     NewUserRepository(db),
		Campaigns: NewCampaignRepository(db),
		Audit:     NewAuditRepository(db),
		Intents:   NewIntentRepository(db),
		Cascade:   NewCascadeDeleter(db),
		Health:    gormPinger{db: db},
	}
}

type gormPinger struct {
	db *gorm.DB
}

func (p gormPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFoundOr(err error, resource string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
