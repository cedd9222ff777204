package repository

import (
	"context"
	"time"

	"fundsphere/internal/models"

	"gorm.io/gorm"
)

// AuditRepository stores campaign status transitions.
type AuditRepository interface {
	Record(ctx context.Context, transition *models.CampaignTransition) error
	ListByCampaign(ctx context.Context, campaignID string) ([]models.CampaignTransition, error)
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository returns a new AuditRepository implementation.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, transition *models.CampaignTransition) error {
	transition.Prepare()
	if transition.CreatedAt.IsZero() {
		transition.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(transition).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *auditRepository) ListByCampaign(ctx context.Context, campaignID string) ([]models.CampaignTransition, error) {
	var out []models.CampaignTransition
	if err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}
