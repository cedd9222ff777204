package mongostore

import (
	"context"

	"fundsphere/internal/models"
	"fundsphere/internal/observability"
	"fundsphere/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// cascade deletes campaigns, then the user, then sweeps campaigns again: a
// creator still signed in can insert between the first two steps. Each step
// is idempotent, so a retry after a crash repeats them safely.
type cascade struct {
	users     *mongo.Collection
	campaigns *mongo.Collection
}

// NewCascadeDeleter returns a CascadeDeleter backed by db.
func NewCascadeDeleter(db *mongo.Database) repository.CascadeDeleter {
	return &cascade{
		users:     db.Collection(UsersCollection),
		campaigns: db.Collection(CampaignsCollection),
	}
}

func (c *cascade) DeleteUserCascade(ctx context.Context, userID string) (int64, error) {
	defer observability.TrackQuery("delete_cascade", UsersCollection)()

	filter := bson.M{"created_by": userID}
	res, err := c.campaigns.DeleteMany(ctx, filter)
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	deleted := res.DeletedCount
	if _, err := c.users.DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
		return deleted, models.NewInternalError(err)
	}
	sweep, err := c.campaigns.DeleteMany(ctx, filter)
	if err != nil {
		return deleted, models.NewInternalError(err)
	}
	return deleted + sweep.DeletedCount, nil
}
