package repository

import (
	"context"
	"errors"
	"time"

	"fundsphere/internal/models"
	"fundsphere/internal/observability"

	"gorm.io/gorm"
)

// CampaignRepository defines persistence operations for campaigns.
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	// AppendMedia appends urls in order without reading the current list and
	// returns the full list after the append.
	AppendMedia(ctx context.Context, id string, urls []string, at time.Time) ([]string, error)
	// Publish moves a draft to published. changed is false when the campaign
	// was already published.
	Publish(ctx context.Context, id string, at time.Time) (campaign *models.Campaign, changed bool, err error)
	ListPublished(ctx context.Context, filter PublishedFilter) ([]*models.Campaign, error)
	GetPublished(ctx context.Context, id string, filter PublishedFilter) (*models.Campaign, error)
	DeleteDrafts(ctx context.Context) (int64, error)
	CountByCreator(ctx context.Context, creatorID string) (int64, error)
}

type campaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository returns a new CampaignRepository implementation.
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func orderedMedia(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func creatorColumns(db *gorm.DB) *gorm.DB {
	return db.Select("id", "username", "email", "role")
}

func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	defer observability.TrackQuery("create", "campaigns")()

	campaign.Prepare()
	if err := r.db.WithContext(ctx).Omit("Creator", "MediaItems").Create(campaign).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	defer observability.TrackQuery("get_by_id", "campaigns")()

	var campaign models.Campaign
	if err := r.db.WithContext(ctx).
		Preload("MediaItems", orderedMedia).
		Where("id = ?", id).
		First(&campaign).Error; err != nil {
		return nil, notFoundOr(err, "Campaign", id)
	}
	campaign.SyncMedia()
	return &campaign, nil
}

func (r *campaignRepository) AppendMedia(ctx context.Context, id string, urls []string, at time.Time) ([]string, error) {
	defer observability.TrackQuery("append_media", "campaign_media")()

	var media []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Campaign{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.NewNotFoundError("Campaign", id)
		}

		if len(urls) > 0 {
			rows := make([]models.CampaignMedia, 0, len(urls))
			for _, u := range urls {
				rows = append(rows, models.CampaignMedia{CampaignID: id, URL: u, CreatedAt: at})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Campaign{}).Where("id = ?", id).Update("updated_at", at).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.CampaignMedia{}).
			Where("campaign_id = ?", id).
			Order("id ASC").
			Pluck("url", &media).Error
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, models.NewInternalError(err)
	}
	if media == nil {
		media = []string{}
	}
	return media, nil
}

func (r *campaignRepository) Publish(ctx context.Context, id string, at time.Time) (*models.Campaign, bool, error) {
	defer observability.TrackQuery("publish", "campaigns")()

	res := r.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, models.CampaignStatusDraft).
		Updates(map[string]any{
			"status":       models.CampaignStatusPublished,
			"published_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return nil, false, models.NewInternalError(res.Error)
	}

	campaign, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return campaign, res.RowsAffected > 0, nil
}

func (r *campaignRepository) publishedQuery(ctx context.Context, filter PublishedFilter) *gorm.DB {
	q := r.db.WithContext(ctx).
		Preload("MediaItems", orderedMedia).
		Preload("Creator", creatorColumns).
		Where("status = ?", models.CampaignStatusPublished)
	if !filter.IgnoreDeadline {
		q = q.Where(r.db.Where("deadline IS NULL").Or("deadline >= ?", filter.Now))
	}
	if filter.CreatorID != "" {
		q = q.Where("created_by = ?", filter.CreatorID)
	}
	return q
}

func (r *campaignRepository) ListPublished(ctx context.Context, filter PublishedFilter) ([]*models.Campaign, error) {
	defer observability.TrackQuery("list_published", "campaigns")()

	var campaigns []*models.Campaign
	if err := r.publishedQuery(ctx, filter).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, c := range campaigns {
		c.SyncMedia()
	}
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}
	return campaigns, nil
}

func (r *campaignRepository) GetPublished(ctx context.Context, id string, filter PublishedFilter) (*models.Campaign, error) {
	defer observability.TrackQuery("get_published", "campaigns")()

	var campaign models.Campaign
	if err := r.publishedQuery(ctx, filter).Where("id = ?", id).First(&campaign).Error; err != nil {
		return nil, notFoundOr(err, "Campaign", id)
	}
	campaign.SyncMedia()
	return &campaign, nil
}

func (r *campaignRepository) DeleteDrafts(ctx context.Context) (int64, error) {
	defer observability.TrackQuery("delete_drafts", "campaigns")()

	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		drafts := tx.Model(&models.Campaign{}).Select("id").Where("status = ?", models.CampaignStatusDraft)
		if err := tx.Where("campaign_id IN (?)", drafts).Delete(&models.CampaignMedia{}).Error; err != nil {
			return err
		}
		res := tx.Where("status = ?", models.CampaignStatusDraft).Delete(&models.Campaign{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return deleted, nil
}

func (r *campaignRepository) CountByCreator(ctx context.Context, creatorID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Campaign{}).Where("created_by = ?", creatorID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
