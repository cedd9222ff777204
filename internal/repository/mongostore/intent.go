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

type intentRepository struct {
	intents *mongo.Collection
}

// NewIntentRepository returns an IntentRepository backed by db.
func NewIntentRepository(db *mongo.Database) repository.IntentRepository {
	return &intentRepository{intents: db.Collection(IntentsCollection)}
}

func (r *intentRepository) Create(ctx context.Context, intent *models.DeletionIntent) error {
	intent.Prepare()
	stamp(&intent.CreatedAt, &intent.UpdatedAt)
	if _, err := r.intents.InsertOne(ctx, intent); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *intentRepository) MarkDone(ctx context.Context, id string) error {
	_, err := r.intents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"state": models.DeletionIntentDone, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"last_error": ""},
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *intentRepository) MarkFailed(ctx context.Context, id string, cause string) error {
	_, err := r.intents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"last_error": cause, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *intentRepository) ListPending(ctx context.Context, limit int) ([]models.DeletionIntent, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.intents.Find(ctx, bson.M{"state": models.DeletionIntentPending}, opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	var out []models.DeletionIntent
	if err := cursor.All(ctx, &out); err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}
