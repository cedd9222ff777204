package repository

import (
	"context"
	"time"

	"fundsphere/internal/models"

	"gorm.io/gorm"
)

// IntentRepository persists user deletion intents.
type IntentRepository interface {
	Create(ctx context.Context, intent *models.DeletionIntent) error
	MarkDone(ctx context.Context, id string) error
	// MarkFailed bumps the attempt counter and records cause.
	MarkFailed(ctx context.Context, id string, cause string) error
	ListPending(ctx context.Context, limit int) ([]models.DeletionIntent, error)
}

type intentRepository struct {
	db *gorm.DB
}

// NewIntentRepository returns a new IntentRepository implementation.
func NewIntentRepository(db *gorm.DB) IntentRepository {
	return &intentRepository{db: db}
}

func (r *intentRepository) Create(ctx context.Context, intent *models.DeletionIntent) error {
	intent.Prepare()
	if err := r.db.WithContext(ctx).Create(intent).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *intentRepository) MarkDone(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&models.DeletionIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      models.DeletionIntentDone,
			"last_error": "",
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *intentRepository) MarkFailed(ctx context.Context, id string, cause string) error {
	err := r.db.WithContext(ctx).Model(&models.DeletionIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *intentRepository) ListPending(ctx context.Context, limit int) ([]models.DeletionIntent, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.DeletionIntent
	if err := r.db.WithContext(ctx).
		Where("state = ?", models.DeletionIntentPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}
