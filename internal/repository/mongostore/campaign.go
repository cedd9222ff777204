package mongostore

import (
	"context"
	"time"

	"fundsphere/internal/models"
	"fundsphere/internal/observability"
	"fundsphere/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type campaignRepository struct {
	campaigns *mongo.Collection
	users     *mongo.Collection
}

// NewCampaignRepository returns a CampaignRepository backed by db.
func NewCampaignRepository(db *mongo.Database) repository.CampaignRepository {
	return &campaignRepository{
		campaigns: db.Collection(CampaignsCollection),
		users:     db.Collection(UsersCollection),
	}
}

func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	defer observability.TrackQuery("create", CampaignsCollection)()

	campaign.Prepare()
	stamp(&campaign.CreatedAt, &campaign.UpdatedAt)
	if _, err := r.campaigns.InsertOne(ctx, campaign); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	defer observability.TrackQuery("get_by_id", CampaignsCollection)()

	var campaign models.Campaign
	if err := r.campaigns.FindOne(ctx, bson.M{"_id": id}).Decode(&campaign); err != nil {
		return nil, notFoundOr(err, "Campaign", id)
	}
	campaign.Prepare()
	return &campaign, nil
}

func (r *campaignRepository) AppendMedia(ctx context.Context, id string, urls []string, at time.Time) ([]string, error) {
	defer observability.TrackQuery("append_media", CampaignsCollection)()

	update := bson.M{
		"$push": bson.M{"media": bson.M{"$each": urls}},
		"$set":  bson.M{"updated_at": at},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"media": 1})

	var out struct {
		Media []string `bson:"media"`
	}
	if err := r.campaigns.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&out); err != nil {
		return nil, notFoundOr(err, "Campaign", id)
	}
	if out.Media == nil {
		out.Media = []string{}
	}
	return out.Media, nil
}

func (r *campaignRepository) Publish(ctx context.Context, id string, at time.Time) (*models.Campaign, bool, error) {
	defer observability.TrackQuery("publish", CampaignsCollection)()

	res, err := r.campaigns.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.CampaignStatusDraft},
		bson.M{"$set": bson.M{
			"status":       models.CampaignStatusPublished,
			"published_at": at,
			"updated_at":   at,
		}},
	)
	if err != nil {
		return nil, false, models.NewInternalError(err)
	}

	campaign, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return campaign, res.ModifiedCount > 0, nil
}

func publishedFilter(filter repository.PublishedFilter) bson.M {
	q := bson.M{"status": models.CampaignStatusPublished}
	if !filter.IgnoreDeadline {
		// {deadline: null} also matches documents without the field.
		q["$or"] = bson.A{
			bson.M{"deadline": nil},
			bson.M{"deadline": bson.M{"$gte": filter.Now}},
		}
	}
	if filter.CreatorID != "" {
		q["created_by"] = filter.CreatorID
	}
	return q
}

func (r *campaignRepository) ListPublished(ctx context.Context, filter repository.PublishedFilter) ([]*models.Campaign, error) {
	defer observability.TrackQuery("list_published", CampaignsCollection)()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.campaigns.Find(ctx, publishedFilter(filter), opts)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	campaigns := []*models.Campaign{}
	if err := cursor.All(ctx, &campaigns); err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := r.populateCreators(ctx, campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *campaignRepository) GetPublished(ctx context.Context, id string, filter repository.PublishedFilter) (*models.Campaign, error) {
	defer observability.TrackQuery("get_published", CampaignsCollection)()

	q := publishedFilter(filter)
	q["_id"] = id

	var campaign models.Campaign
	if err := r.campaigns.FindOne(ctx, q).Decode(&campaign); err != nil {
		return nil, notFoundOr(err, "Campaign", id)
	}
	if err := r.populateCreators(ctx, []*models.Campaign{&campaign}); err != nil {
		return nil, err
	}
	return &campaign, nil
}

// populateCreators loads the owner projection for every campaign in one query.
func (r *campaignRepository) populateCreators(ctx context.Context, campaigns []*models.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(campaigns))
	ids := make([]string, 0, len(campaigns))
	for _, c := range campaigns {
		c.Prepare()
		if _, ok := seen[c.CreatedBy]; ok {
			continue
		}
		seen[c.CreatedBy] = struct{}{}
		ids = append(ids, c.CreatedBy)
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1, "username": 1, "email": 1, "role": 1})
	cursor, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return models.NewInternalError(err)
	}
	var creators []models.CreatorSummary
	if err := cursor.All(ctx, &creators); err != nil {
		return models.NewInternalError(err)
	}

	byID := make(map[string]*models.CreatorSummary, len(creators))
	for i := range creators {
		byID[creators[i].ID] = &creators[i]
	}
	for _, c := range campaigns {
		c.Creator = byID[c.CreatedBy]
	}
	return nil
}

func (r *campaignRepository) DeleteDrafts(ctx context.Context) (int64, error) {
	defer observability.TrackQuery("delete_drafts", CampaignsCollection)()

	res, err := r.campaigns.DeleteMany(ctx, bson.M{"status": models.CampaignStatusDraft})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return res.DeletedCount, nil
}

func (r *campaignRepository) CountByCreator(ctx context.Context, creatorID string) (int64, error) {
	n, err := r.campaigns.CountDocuments(ctx, bson.M{"created_by": creatorID})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}
