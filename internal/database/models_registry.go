package database

import "fundsphere/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Campaign{},
		&models.CampaignMedia{},
		&models.CampaignTransition{},
		&models.DeletionIntent{},
	}
}
