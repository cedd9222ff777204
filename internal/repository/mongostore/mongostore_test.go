package mongostore

import (
	"context"
	"testing"
	"time"

	"fundsphere/internal/models"
	"fundsphere/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var now = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func ns(mt *mtest.T, coll string) string {
	return mt.DB.Name() + "." + coll
}

func campaignDoc(id, owner string, status models.CampaignStatus, media ...string) bson.D {
	urls := bson.A{}
	for _, m := range media {
		urls = append(urls, m)
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "title", Value: "Clean Water"},
		{Key: "description", Value: "Wells"},
		{Key: "goal_amount", Value: 5000.0},
		{Key: "created_by", Value: owner},
		{Key: "status", Value: string(status)},
		{Key: "media", Value: urls},
		{Key: "created_at", Value: now},
	}
}

func TestCampaignRepository_Mongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create assigns id and draft status", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		campaign := &models.Campaign{Title: "Clean Water", Description: "Wells", GoalAmount: 5000, CreatedBy: "u1"}
		require.NoError(t, repo.Create(context.Background(), campaign))
		assert.NotEmpty(t, campaign.ID)
		assert.Equal(t, models.CampaignStatusDraft, campaign.Status)
		assert.False(t, campaign.CreatedAt.IsZero())
	})

	mt.Run("get missing is not found", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, CampaignsCollection), mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), "missing")
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
	})

	mt.Run("append media pushes and returns full list", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: bson.D{
				{Key: "_id", Value: "c1"},
				{Key: "media", Value: bson.A{"a", "b", "c"}},
			}},
		))

		media, err := repo.AppendMedia(context.Background(), "c1", []string{"b", "c"}, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, media)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		assert.Equal(t, "findAndModify", started.CommandName)
		update := started.Command.Lookup("update").Document()
		each := update.Lookup("$push", "media", "$each").Array()
		values, err := each.Values()
		require.NoError(t, err)
		require.Len(t, values, 2)
		assert.Equal(t, "b", values[0].StringValue())
	})

	mt.Run("append media on missing campaign", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := repo.AppendMedia(context.Background(), "missing", []string{"x"}, now)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
	})

	mt.Run("publish reports change", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateCursorResponse(0, ns(mt, CampaignsCollection), mtest.FirstBatch,
				campaignDoc("c1", "u1", models.CampaignStatusPublished)),
		)

		campaign, changed, err := repo.Publish(context.Background(), "c1", now)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, models.CampaignStatusPublished, campaign.Status)
	})

	mt.Run("publish twice is a no-op", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns(mt, CampaignsCollection), mtest.FirstBatch,
				campaignDoc("c1", "u1", models.CampaignStatusPublished)),
		)

		_, changed, err := repo.Publish(context.Background(), "c1", now)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	mt.Run("list published joins creators", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, CampaignsCollection), mtest.FirstBatch,
				campaignDoc("c2", "u2", models.CampaignStatusPublished),
				campaignDoc("c1", "u1", models.CampaignStatusPublished, "m1"),
			),
			mtest.CreateCursorResponse(0, ns(mt, UsersCollection), mtest.FirstBatch,
				bson.D{{Key: "_id", Value: "u1"}, {Key: "username", Value: "alice"}, {Key: "role", Value: "user"}},
				bson.D{{Key: "_id", Value: "u2"}, {Key: "username", Value: "bob"}, {Key: "role", Value: "user"}},
			),
		)

		list, err := repo.ListPublished(context.Background(), repository.PublishedFilter{Now: now})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c2", list[0].ID)
		require.NotNil(t, list[0].Creator)
		assert.Equal(t, "bob", list[0].Creator.Username)
		assert.Equal(t, []string{"m1"}, list[1].Media)
	})

	mt.Run("delete drafts returns count", func(mt *mtest.T) {
		repo := NewCampaignRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		deleted, err := repo.DeleteDrafts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted)
	})
}

func TestPublishedFilter(t *testing.T) {
	q := publishedFilter(repository.PublishedFilter{Now: now})
	assert.Equal(t, models.CampaignStatusPublished, q["status"])
	assert.Contains(t, q, "$or")
	assert.NotContains(t, q, "created_by")

	scoped := publishedFilter(repository.PublishedFilter{Now: now, CreatorID: "u1", IgnoreDeadline: true})
	assert.NotContains(t, scoped, "$or")
	assert.Equal(t, "u1", scoped["created_by"])
}

func TestUserRepository_Mongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate key is a conflict", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := repo.Create(context.Background(), &models.User{Username: "alice", Email: "a@example.com", Password: "x"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeConflict, appErr.Code)
	})

	mt.Run("missing email returns nil", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, UsersCollection), mtest.FirstBatch))

		user, err := repo.GetByEmail(context.Background(), "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	mt.Run("update unknown user is not found", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.Update(context.Background(), &models.User{ID: "missing"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.CodeNotFound, appErr.Code)
	})

	mt.Run("list sorts by role then recency", func(mt *mtest.T) {
		repo := NewUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, UsersCollection), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "u2"}, {Key: "username", Value: "bob"}, {Key: "role", Value: "user"}},
		))

		users, err := repo.List(context.Background(), "admin")
		require.NoError(t, err)
		require.Len(t, users, 1)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		sort := started.Command.Lookup("sort").Document()
		elems, err := sort.Elements()
		require.NoError(t, err)
		require.Len(t, elems, 2)
		assert.Equal(t, "role", elems[0].Key())
		assert.Equal(t, "created_at", elems[1].Key())
	})
}

func TestCascadeDeleter_Mongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("deletes campaigns, user, then sweeps late campaigns", func(mt *mtest.T) {
		cascade := NewCascadeDeleter(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		deleted, err := cascade.DeleteUserCascade(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), deleted, "campaign inserted during the delete is counted")

		for _, want := range []string{CampaignsCollection, UsersCollection, CampaignsCollection} {
			ev := mt.GetStartedEvent()
			require.NotNil(t, ev)
			assert.Equal(t, want, ev.Command.Lookup("delete").StringValue())
		}
	})

	mt.Run("sweep failure is reported", func(mt *mtest.T) {
		cascade := NewCascadeDeleter(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value"}),
		)

		deleted, err := cascade.DeleteUserCascade(context.Background(), "u1")
		assert.Error(t, err)
		assert.Equal(t, int64(2), deleted)
	})

	mt.Run("user step failure keeps campaign count", func(mt *mtest.T) {
		cascade := NewCascadeDeleter(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}),
			mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad value"}),
		)

		deleted, err := cascade.DeleteUserCascade(context.Background(), "u1")
		assert.Error(t, err)
		assert.Equal(t, int64(2), deleted)
	})
}

func TestIntentRepository_Mongo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list pending decodes intents", func(mt *mtest.T) {
		repo := NewIntentRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, IntentsCollection), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "i1"}, {Key: "user_id", Value: "u1"}, {Key: "state", Value: "pending"}, {Key: "attempts", Value: 2}},
		))

		pending, err := repo.ListPending(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "u1", pending[0].UserID)
		assert.Equal(t, 2, pending[0].Attempts)
	})
}
