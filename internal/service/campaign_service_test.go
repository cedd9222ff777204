package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundsphere/internal/cache"
	"fundsphere/internal/featureflags"
	"fundsphere/internal/media"
	"fundsphere/internal/models"
	"fundsphere/internal/notifications"
	"fundsphere/internal/repository"
	"fundsphere/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newCampaignService(repo *campaignRepoStub, audit *auditRepoStub) *CampaignService {
	return NewCampaignService(CampaignDeps{
		Campaigns: repo,
		Audit:     audit,
		Ingestor:  ingestorStub{},
		Clock:     fixedClock(),
	})
}

func validCreateInput() CreateCampaignInput {
	return CreateCampaignInput{
		CreatorID:   "owner",
		Title:       "  Clean Water  ",
		Description: "Wells for the village",
		GoalAmount:  5000,
		Deadline:    ptr(fixedNow.Add(30 * 24 * time.Hour)),
		Milestones:  []models.Milestone{{Percentage: 50, Description: "Drill"}},
	}
}

func TestCampaignService_Create_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*CreateCampaignInput)
	}{
		{"blank title", func(in *CreateCampaignInput) { in.Title = "   " }},
		{"blank description", func(in *CreateCampaignInput) { in.Description = "" }},
		{"zero goal", func(in *CreateCampaignInput) { in.GoalAmount = 0 }},
		{"negative goal", func(in *CreateCampaignInput) { in.GoalAmount = -10 }},
		{"missing deadline", func(in *CreateCampaignInput) { in.Deadline = nil }},
		{"deadline now", func(in *CreateCampaignInput) { in.Deadline = ptr(fixedNow) }},
		{"deadline past", func(in *CreateCampaignInput) { in.Deadline = ptr(fixedNow.Add(-time.Hour)) }},
		{"milestone zero percent", func(in *CreateCampaignInput) {
			in.Milestones = []models.Milestone{{Percentage: 0, Description: "x"}}
		}},
		{"milestone over 100", func(in *CreateCampaignInput) {
			in.Milestones = []models.Milestone{{Percentage: 101, Description: "x"}}
		}},
		{"milestone blank description", func(in *CreateCampaignInput) {
			in.Milestones = []models.Milestone{{Percentage: 10, Description: " "}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			repo := noopCampaignRepo()
			repo.createFn = func(context.Context, *models.Campaign) error {
				t.Fatal("create must not be called")
				return nil
			}
			svc := newCampaignService(repo, &auditRepoStub{})
			in := validCreateInput()
			tc.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			assertValidationError(t, err)
		})
	}
}

func TestCampaignService_Create_PersistsDraft(t *testing.T) {
	t.Parallel()
	repo := noopCampaignRepo()
	var saved *models.Campaign
	repo.createFn = func(_ context.Context, c *models.Campaign) error {
		c.Prepare()
		saved = c
		return nil
	}
	svc := newCampaignService(repo, &auditRepoStub{})

	in := validCreateInput()
	in.Milestones = nil
	campaign, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Same(t, saved, campaign)
	assert.Equal(t, "Clean Water", campaign.Title)
	assert.Equal(t, models.CampaignStatusDraft, campaign.Status)
	assert.Equal(t, "owner", campaign.CreatedBy)
	assert.Empty(t, campaign.Media)
	assert.NotNil(t, campaign.Milestones)
	assert.NotEmpty(t, campaign.ID)
}

func TestCampaignService_Create_StrictMilestones(t *testing.T) {
	t.Parallel()
	svc := NewCampaignService(CampaignDeps{
		Campaigns:  noopCampaignRepo(),
		Audit:      &auditRepoStub{},
		Milestones: StrictMilestones{},
		Clock:      fixedClock(),
	})

	in := validCreateInput()
	in.Milestones = []models.Milestone{{Percentage: 60, Description: "a"}, {Percentage: 50, Description: "b"}}
	_, err := svc.Create(context.Background(), in)
	assertValidationError(t, err)

	in.Milestones = []models.Milestone{{Percentage: 25, Description: "a"}, {Percentage: 75, Description: "b"}}
	_, err = svc.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestCampaignService_Create_StrictMilestonesFlag(t *testing.T) {
	t.Parallel()
	svc := NewCampaignService(CampaignDeps{
		Campaigns: noopCampaignRepo(),
		Audit:     &auditRepoStub{},
		Flags:     featureflags.NewManager("strict_milestones=on"),
		Clock:     fixedClock(),
	})

	in := validCreateInput()
	in.Milestones = []models.Milestone{{Percentage: 80, Description: "a"}, {Percentage: 40, Description: "b"}}
	_, err := svc.Create(context.Background(), in)
	assertValidationError(t, err)

	off := NewCampaignService(CampaignDeps{
		Campaigns: noopCampaignRepo(),
		Audit:     &auditRepoStub{},
		Flags:     featureflags.NewManager("strict_milestones=off"),
		Clock:     fixedClock(),
	})
	_, err = off.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestStrictMilestones_SumLimit(t *testing.T) {
	t.Parallel()
	err := StrictMilestones{}.Validate([]models.Milestone{
		{Percentage: 30, Description: "a"},
		{Percentage: 40, Description: "b"},
		{Percentage: 50, Description: "c"},
	})
	assertValidationError(t, err)
	assert.NoError(t, PermissiveMilestones{}.Validate([]models.Milestone{{Percentage: 90}, {Percentage: 10}}))
	assert.IsType(t, StrictMilestones{}, MilestoneValidatorFor(true))
}

func draftOwnedBy(owner string) *models.Campaign {
	return &models.Campaign{ID: "c1", CreatedBy: owner, Status: models.CampaignStatusDraft, Media: []string{"https://cdn.test/existing.png"}}
}

func TestCampaignService_Publish(t *testing.T) {
	t.Parallel()

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		svc := newCampaignService(noopCampaignRepo(), &auditRepoStub{})
		_, err := svc.Publish(context.Background(), "missing", Actor{ID: "owner"})
		assertAppErrorCode(t, err, models.CodeNotFound)
	})

	t.Run("non owner forbidden", func(t *testing.T) {
		t.Parallel()
		repo := noopCampaignRepo()
		repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
		repo.publishFn = func(context.Context, string, time.Time) (*models.Campaign, bool, error) {
			t.Fatal("publish must not be called")
			return nil, false, nil
		}
		svc := newCampaignService(repo, &auditRepoStub{})
		_, err := svc.Publish(context.Background(), "c1", Actor{ID: "intruder", Role: models.RoleAdmin})
		assertAppErrorCode(t, err, models.CodeForbidden)
	})

	t.Run("idempotent with one audit row", func(t *testing.T) {
		t.Parallel()
		current := draftOwnedBy("owner")
		repo := noopCampaignRepo()
		repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) {
			cp := *current
			return &cp, nil
		}
		repo.publishFn = func(_ context.Context, _ string, at time.Time) (*models.Campaign, bool, error) {
			if current.Status == models.CampaignStatusPublished {
				cp := *current
				return &cp, false, nil
			}
			current.Status = models.CampaignStatusPublished
			current.PublishedAt = &at
			cp := *current
			return &cp, true, nil
		}
		audit := &auditRepoStub{}
		svc := newCampaignService(repo, audit)

		first, err := svc.Publish(context.Background(), "c1", Actor{ID: "owner"})
		require.NoError(t, err)
		second, err := svc.Publish(context.Background(), "c1", Actor{ID: "owner"})
		require.NoError(t, err)

		assert.Equal(t, models.CampaignStatusPublished, first.Status)
		assert.Equal(t, models.CampaignStatusPublished, second.Status)
		require.Len(t, audit.records, 1)
		assert.Equal(t, models.TransitionReasonPublish, audit.records[0].Reason)
		assert.Equal(t, "owner", audit.records[0].ChangedBy)
		assert.Equal(t, fixedNow, *second.PublishedAt)
	})
}

func TestCampaignService_AttachMedia(t *testing.T) {
	t.Parallel()

	files := []media.File{{Name: "a.png"}, {Name: "b.png"}, {Name: "c.png"}}

	t.Run("partial failure keeps order", func(t *testing.T) {
		t.Parallel()
		repo := noopCampaignRepo()
		repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
		var appended []string
		repo.appendMediaFn = func(_ context.Context, id string, urls []string, at time.Time) ([]string, error) {
			assert.Equal(t, "c1", id)
			assert.Equal(t, fixedNow, at)
			appended = urls
			return append([]string{"https://cdn.test/existing.png"}, urls...), nil
		}
		svc := NewCampaignService(CampaignDeps{
			Campaigns: repo,
			Audit:     &auditRepoStub{},
			Ingestor:  ingestorStub{fail: map[string]error{"b.png": media.ErrTypeMismatch}},
			Clock:     fixedClock(),
		})

		res, err := svc.AttachMedia(context.Background(), "c1", Actor{ID: "owner"}, files)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://cdn.test/a.png", "https://cdn.test/c.png"}, appended)
		assert.Equal(t, []string{
			"https://cdn.test/existing.png",
			"https://cdn.test/a.png",
			"https://cdn.test/c.png",
		}, res.Media)
		assert.Equal(t, 2, res.Uploaded)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "b.png", res.Failed[0].File)
	})

	t.Run("all failed skips append", func(t *testing.T) {
		t.Parallel()
		repo := noopCampaignRepo()
		repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
		repo.appendMediaFn = func(context.Context, string, []string, time.Time) ([]string, error) {
			t.Fatal("append must not be called")
			return nil, nil
		}
		boom := errors.New("boom")
		svc := NewCampaignService(CampaignDeps{
			Campaigns: repo,
			Ingestor:  ingestorStub{fail: map[string]error{"a.png": boom}},
			Clock:     fixedClock(),
		})
		res, err := svc.AttachMedia(context.Background(), "c1", Actor{ID: "owner"}, files[:1])
		require.NoError(t, err)
		assert.Zero(t, res.Uploaded)
		assert.Equal(t, []string{"https://cdn.test/existing.png"}, res.Media)
		assert.Len(t, res.Failed, 1)
	})

	t.Run("non owner forbidden", func(t *testing.T) {
		t.Parallel()
		repo := noopCampaignRepo()
		repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
		svc := newCampaignService(repo, &auditRepoStub{})
		_, err := svc.AttachMedia(context.Background(), "c1", Actor{ID: "someone"}, files)
		assertAppErrorCode(t, err, models.CodeForbidden)
	})

	t.Run("no files", func(t *testing.T) {
		t.Parallel()
		repo := noopCampaignRepo()
		repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
		svc := newCampaignService(repo, &auditRepoStub{})
		_, err := svc.AttachMedia(context.Background(), "c1", Actor{ID: "owner"}, nil)
		assertValidationError(t, err)
	})

	t.Run("missing campaign", func(t *testing.T) {
		t.Parallel()
		svc := newCampaignService(noopCampaignRepo(), &auditRepoStub{})
		_, err := svc.AttachMedia(context.Background(), "nope", Actor{ID: "owner"}, files)
		assertAppErrorCode(t, err, models.CodeNotFound)
	})
}

func TestCampaignService_Preview(t *testing.T) {
	t.Parallel()
	repo := noopCampaignRepo()
	repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
	svc := newCampaignService(repo, &auditRepoStub{})

	got, err := svc.Preview(context.Background(), "c1", Actor{ID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	_, err = svc.Preview(context.Background(), "c1", Actor{ID: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Preview(context.Background(), "c1", Actor{ID: "stranger"})
	assertAppErrorCode(t, err, models.CodeNotFound)
}

func TestCampaignService_ListAndGetFilters(t *testing.T) {
	t.Parallel()
	repo := noopCampaignRepo()
	var filters []repository.PublishedFilter
	repo.listPublishedFn = func(_ context.Context, f repository.PublishedFilter) ([]*models.Campaign, error) {
		filters = append(filters, f)
		return []*models.Campaign{{ID: "p1", Status: models.CampaignStatusPublished}}, nil
	}
	var getFilter repository.PublishedFilter
	repo.getPublishedFn = func(_ context.Context, _ string, f repository.PublishedFilter) (*models.Campaign, error) {
		getFilter = f
		return &models.Campaign{ID: "p1"}, nil
	}
	svc := newCampaignService(repo, &auditRepoStub{})
	ctx := context.Background()

	list, err := svc.ListPublished(ctx, ListPublishedInput{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListPublished(ctx, ListPublishedInput{CreatorID: ptr("owner")})
	require.NoError(t, err)

	require.Len(t, filters, 2)
	assert.Equal(t, repository.PublishedFilter{Now: fixedNow}, filters[0])
	assert.Equal(t, repository.PublishedFilter{Now: fixedNow, CreatorID: "owner"}, filters[1])

	_, err = svc.GetPublished(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, repository.PublishedFilter{Now: fixedNow}, getFilter)

	_, err = svc.GetPublished(ctx, "p1", ptr("owner"))
	require.NoError(t, err)
	assert.Equal(t, repository.PublishedFilter{Now: fixedNow, CreatorID: "owner", IgnoreDeadline: true}, getFilter)
}

func TestCampaignService_ListPublished_CachedAndInvalidated(t *testing.T) {
	t.Parallel()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	repo := noopCampaignRepo()
	repo.listPublishedFn = func(context.Context, repository.PublishedFilter) ([]*models.Campaign, error) {
		calls++
		return []*models.Campaign{{ID: "p1", Status: models.CampaignStatusPublished, Creator: &models.CreatorSummary{ID: "owner", Username: "ada"}}}, nil
	}
	repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
	repo.publishFn = func(_ context.Context, _ string, at time.Time) (*models.Campaign, bool, error) {
		return &models.Campaign{ID: "c1", Status: models.CampaignStatusPublished, PublishedAt: &at}, true, nil
	}
	svc := NewCampaignService(CampaignDeps{
		Campaigns: repo,
		Audit:     &auditRepoStub{},
		Clock:     fixedClock(),
		Cache:     cache.NewStore(client),
	})
	ctx := context.Background()

	first, err := svc.ListPublished(ctx, ListPublishedInput{})
	require.NoError(t, err)
	second, err := svc.ListPublished(ctx, ListPublishedInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	require.NotNil(t, second[0].Creator)
	assert.Equal(t, "ada", second[0].Creator.Username)

	_, err = svc.Publish(ctx, "c1", Actor{ID: "owner"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.PublishedCampaignsKey))

	_, err = svc.ListPublished(ctx, ListPublishedInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCampaignService_ListPublished_CachedEntryExpiresAtDeadline(t *testing.T) {
	t.Parallel()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	deadline := fixedNow.Add(time.Second)
	later := fixedNow.Add(48 * time.Hour)
	calls := 0
	repo := noopCampaignRepo()
	repo.listPublishedFn = func(_ context.Context, f repository.PublishedFilter) ([]*models.Campaign, error) {
		calls++
		all := []*models.Campaign{
			{ID: "closing", Status: models.CampaignStatusPublished, Deadline: &deadline},
			{ID: "open", Status: models.CampaignStatusPublished, Deadline: &later},
		}
		var out []*models.Campaign
		for _, c := range all {
			if c.VisibleAt(f.Now) {
				out = append(out, c)
			}
		}
		return out, nil
	}
	clock := testutil.NewFixedClock(fixedNow)
	svc := NewCampaignService(CampaignDeps{
		Campaigns: repo,
		Audit:     &auditRepoStub{},
		Clock:     clock,
		Cache:     cache.NewStore(client),
		CacheTTL:  time.Minute,
	})
	ctx := context.Background()

	list, err := svc.ListPublished(ctx, ListPublishedInput{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	clock.Set(fixedNow.Add(10 * time.Second))
	list, err = svc.ListPublished(ctx, ListPublishedInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second listing should come from the cache")
	require.Len(t, list, 1)
	assert.Equal(t, "open", list[0].ID)
}

func TestCampaignService_DeleteDrafts(t *testing.T) {
	t.Parallel()

	t.Run("admin purges and audits", func(t *testing.T) {
		t.Parallel()
		repo := noopCampaignRepo()
		repo.deleteDraftsFn = func(context.Context) (int64, error) { return 3, nil }
		audit := &auditRepoStub{}
		svc := newCampaignService(repo, audit)

		n, err := svc.DeleteDrafts(context.Background(), Actor{ID: "root", Role: models.RoleAdmin})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
		require.Len(t, audit.records, 1)
		assert.Equal(t, models.TransitionReasonPurgeDrafts, audit.records[0].Reason)
		assert.EqualValues(t, 3, audit.records[0].Affected)
		assert.Empty(t, audit.records[0].CampaignID)
	})

	t.Run("non admin forbidden", func(t *testing.T) {
		t.Parallel()
		repo := noopCampaignRepo()
		repo.deleteDraftsFn = func(context.Context) (int64, error) {
			t.Fatal("delete must not be called")
			return 0, nil
		}
		svc := newCampaignService(repo, &auditRepoStub{})
		_, err := svc.DeleteDrafts(context.Background(), Actor{ID: "mod", Role: models.RoleModerator})
		assertAppErrorCode(t, err, models.CodeForbidden)
	})
}

func TestOwnershipPolicy(t *testing.T) {
	t.Parallel()
	owned := draftOwnedBy("owner")
	policy := OwnershipPolicy{}

	cases := []struct {
		name  string
		actor Actor
		c     *models.Campaign
		op    Operation
		code  string
	}{
		{"owner publishes", Actor{ID: "owner"}, owned, OpPublish, ""},
		{"owner attaches after publish", Actor{ID: "owner"}, &models.Campaign{CreatedBy: "owner", Status: models.CampaignStatusPublished}, OpAttachMedia, ""},
		{"admin cannot publish others", Actor{ID: "root", Role: models.RoleAdmin}, owned, OpPublish, models.CodeForbidden},
		{"admin previews", Actor{ID: "root", Role: models.RoleAdmin}, owned, OpPreview, ""},
		{"stranger preview hidden", Actor{ID: "x"}, owned, OpPreview, models.CodeNotFound},
		{"anonymous", Actor{}, owned, OpPublish, models.CodeUnauthorized},
		{"admin purges", Actor{ID: "root", Role: models.RoleAdmin}, nil, OpPurgeDrafts, ""},
		{"user cannot purge", Actor{ID: "owner"}, nil, OpPurgeDrafts, models.CodeForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := policy.Authorize(tc.actor, tc.c, tc.op)
			if tc.code == "" {
				assert.NoError(t, err)
				return
			}
			assertAppErrorCode(t, err, tc.code)
		})
	}
}

func TestCampaignService_PublishesLifecycleEvents(t *testing.T) {
	t.Parallel()
	repo := noopCampaignRepo()
	repo.getByIDFn = func(context.Context, string) (*models.Campaign, error) { return draftOwnedBy("owner"), nil }
	published := false
	repo.publishFn = func(_ context.Context, _ string, at time.Time) (*models.Campaign, bool, error) {
		changed := !published
		published = true
		return &models.Campaign{ID: "c1", Status: models.CampaignStatusPublished, PublishedAt: &at}, changed, nil
	}
	repo.deleteDraftsFn = func(context.Context) (int64, error) { return 2, nil }
	events := &eventRecorder{err: errors.New("redis down")}
	svc := NewCampaignService(CampaignDeps{
		Campaigns: repo,
		Audit:     &auditRepoStub{},
		Ingestor:  ingestorStub{},
		Events:    events,
		Clock:     fixedClock(),
	})
	ctx := context.Background()

	_, err := svc.AttachMedia(ctx, "c1", Actor{ID: "owner"}, []media.File{{Name: "a.png"}})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, "c1", Actor{ID: "owner"})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, "c1", Actor{ID: "owner"})
	require.NoError(t, err)
	_, err = svc.DeleteDrafts(ctx, Actor{ID: "root", Role: models.RoleAdmin})
	require.NoError(t, err)

	assert.Equal(t, []string{
		notifications.EventMediaAttached,
		notifications.EventCampaignPublished,
		notifications.EventDraftsPurged,
	}, events.types())
	assert.Equal(t, "c1", events.events[1].CampaignID)
	assert.Equal(t, fixedNow, events.events[1].OccurredAt)
	assert.EqualValues(t, 2, events.events[2].Affected)
	assert.Equal(t, "root", events.events[2].ActorID)
}
