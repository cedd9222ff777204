package mongostore

import (
	"context"
	"time"

	"fundsphere/internal/models"
	"fundsphere/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type auditRepository struct {
	transitions *mongo.Collection
}

// NewAuditRepository returns an AuditRepository backed by db.
func NewAuditRepository(db *mongo.Database) repository.AuditRepository {
	return &auditRepository{transitions: db.Collection(TransitionsCollection)}
}

func (r *auditRepository) Record(ctx context.Context, transition *models.CampaignTransition) error {
	transition.Prepare()
	if transition.CreatedAt.IsZero() {
		transition.CreatedAt = time.Now().UTC()
	}
	if _, err := r.transitions.InsertOne(ctx, transition); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *auditRepository) ListByCampaign(ctx context.Context, campaignID string) ([]models.CampaignTransition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.transitions.Find(ctx, bson.M{"campaign_id": campaignID}, opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	var out []models.CampaignTransition
	if err := cursor.All(ctx, &out); err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}
