package repository

import (
	"context"

	"fundsphere/internal/models"
	"fundsphere/internal/observability"

	"gorm.io/gorm"
)

// CascadeDeleter removes a user together with every campaign they created.
// Deleting a user that no longer exists succeeds with zero campaigns.
type CascadeDeleter interface {
	DeleteUserCascade(ctx context.Context, userID string) (campaigns int64, err error)
}

type gormCascade struct {
	db *gorm.DB
}

// NewCascadeDeleter returns a CascadeDeleter that runs in one transaction.
func NewCascadeDeleter(db *gorm.DB) CascadeDeleter {
	return &gormCascade{db: db}
}

func (c *gormCascade) DeleteUserCascade(ctx context.Context, userID string) (int64, error) {
	defer observability.TrackQuery("delete_cascade", "users")()

	var campaigns int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.Campaign{}).Select("id").Where("created_by = ?", userID)
		if err := tx.Where("campaign_id IN (?)", owned).Delete(&models.CampaignMedia{}).Error; err != nil {
			return err
		}
		res := tx.Where("created_by = ?", userID).Delete(&models.Campaign{})
		if res.Error != nil {
			return res.Error
		}
		campaigns = res.RowsAffected
		return tx.Where("id = ?", userID).Delete(&models.User{}).Error
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return campaigns, nil
}
