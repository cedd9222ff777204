package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fundsphere/internal/cache"
	"fundsphere/internal/media"
	"fundsphere/internal/models"
	"fundsphere/internal/notifications"
	"fundsphere/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

// seededCache returns a cache whose published listing is already populated.
func seededCache(t *testing.T) (*miniredis.Miniredis, *cache.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set(cache.PublishedCampaignsKey, "[]"))
	return mr, cache.NewStore(client)
}

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return fixedNow })
}

type campaignRepoStub struct {
	createFn         func(context.Context, *models.Campaign) error
	getByIDFn        func(context.Context, string) (*models.Campaign, error)
	appendMediaFn    func(context.Context, string, []string, time.Time) ([]string, error)
	publishFn        func(context.Context, string, time.Time) (*models.Campaign, bool, error)
	listPublishedFn  func(context.Context, repository.PublishedFilter) ([]*models.Campaign, error)
	getPublishedFn   func(context.Context, string, repository.PublishedFilter) (*models.Campaign, error)
	deleteDraftsFn   func(context.Context) (int64, error)
	countByCreatorFn func(context.Context, string) (int64, error)
}

func (s *campaignRepoStub) Create(ctx context.Context, c *models.Campaign) error {
	return s.createFn(ctx, c)
}
func (s *campaignRepoStub) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	return s.getByIDFn(ctx, id)
}
func (s *campaignRepoStub) AppendMedia(ctx context.Context, id string, urls []string, at time.Time) ([]string, error) {
	return s.appendMediaFn(ctx, id, urls, at)
}
func (s *campaignRepoStub) Publish(ctx context.Context, id string, at time.Time) (*models.Campaign, bool, error) {
	return s.publishFn(ctx, id, at)
}
func (s *campaignRepoStub) ListPublished(ctx context.Context, f repository.PublishedFilter) ([]*models.Campaign, error) {
	return s.listPublishedFn(ctx, f)
}
func (s *campaignRepoStub) GetPublished(ctx context.Context, id string, f repository.PublishedFilter) (*models.Campaign, error) {
	return s.getPublishedFn(ctx, id, f)
}
func (s *campaignRepoStub) DeleteDrafts(ctx context.Context) (int64, error) {
	return s.deleteDraftsFn(ctx)
}
func (s *campaignRepoStub) CountByCreator(ctx context.Context, creatorID string) (int64, error) {
	return s.countByCreatorFn(ctx, creatorID)
}

func noopCampaignRepo() *campaignRepoStub {
	return &campaignRepoStub{
		createFn: func(_ context.Context, c *models.Campaign) error {
			c.Prepare()
			return nil
		},
		getByIDFn: func(_ context.Context, id string) (*models.Campaign, error) {
			return nil, models.NewNotFoundError("Campaign", id)
		},
		appendMediaFn: func(_ context.Context, _ string, urls []string, _ time.Time) ([]string, error) {
			return urls, nil
		},
		publishFn: func(_ context.Context, id string, _ time.Time) (*models.Campaign, bool, error) {
			return nil, false, models.NewNotFoundError("Campaign", id)
		},
		listPublishedFn:  func(context.Context, repository.PublishedFilter) ([]*models.Campaign, error) { return nil, nil },
		getPublishedFn:   func(_ context.Context, id string, _ repository.PublishedFilter) (*models.Campaign, error) { return nil, models.NewNotFoundError("Campaign", id) },
		deleteDraftsFn:   func(context.Context) (int64, error) { return 0, nil },
		countByCreatorFn: func(context.Context, string) (int64, error) { return 0, nil },
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notifications.CampaignEvent
	err    error
}

func (r *eventRecorder) PublishCampaignEvent(_ context.Context, ev notifications.CampaignEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type auditRepoStub struct {
	mu      sync.Mutex
	records []models.CampaignTransition
	err     error
}

func (s *auditRepoStub) Record(_ context.Context, t *models.CampaignTransition) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *t)
	return nil
}

func (s *auditRepoStub) ListByCampaign(_ context.Context, campaignID string) ([]models.CampaignTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CampaignTransition
	for _, r := range s.records {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

type userRepoStub struct {
	getByIDFn       func(context.Context, string) (*models.User, error)
	getByEmailFn    func(context.Context, string) (*models.User, error)
	getByUsernameFn func(context.Context, string) (*models.User, error)
	createFn        func(context.Context, *models.User) error
	updateFn        func(context.Context, *models.User) error
	listFn          func(context.Context, string) ([]models.User, error)
	getByIDsFn      func(context.Context, []string) ([]models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) List(ctx context.Context, excludeID string) ([]models.User, error) {
	return s.listFn(ctx, excludeID)
}
func (s *userRepoStub) GetByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	return s.getByIDsFn(ctx, ids)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Role: models.RoleUser, Status: models.UserStatusActive}, nil
		},
		getByEmailFn:    func(context.Context, string) (*models.User, error) { return nil, nil },
		getByUsernameFn: func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn: func(_ context.Context, u *models.User) error {
			u.Prepare()
			return nil
		},
		updateFn:   func(context.Context, *models.User) error { return nil },
		listFn:     func(context.Context, string) ([]models.User, error) { return nil, nil },
		getByIDsFn: func(context.Context, []string) ([]models.User, error) { return nil, nil },
	}
}

type intentRepoStub struct {
	mu      sync.Mutex
	intents map[string]*models.DeletionIntent
	order   []string
}

func newIntentRepoStub() *intentRepoStub {
	return &intentRepoStub{intents: map[string]*models.DeletionIntent{}}
}

func (s *intentRepoStub) Create(_ context.Context, intent *models.DeletionIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent.Prepare()
	cp := *intent
	s.intents[intent.ID] = &cp
	s.order = append(s.order, intent.ID)
	return nil
}

func (s *intentRepoStub) MarkDone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[id].State = models.DeletionIntentDone
	return nil
}

func (s *intentRepoStub) MarkFailed(_ context.Context, id string, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[id].Attempts++
	s.intents[id].LastError = cause
	return nil
}

func (s *intentRepoStub) ListPending(_ context.Context, limit int) ([]models.DeletionIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeletionIntent
	for _, id := range s.order {
		if in := s.intents[id]; in.State == models.DeletionIntentPending {
			out = append(out, *in)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *intentRepoStub) get(id string) models.DeletionIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.intents[id]
}

type cascadeStub struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (s *cascadeStub) DeleteUserCascade(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, userID)
	if err := s.failFor[userID]; err != nil {
		return 0, err
	}
	return 2, nil
}

type ingestorStub struct {
	fail map[string]error
}

func (s ingestorStub) IngestAll(_ context.Context, files []media.File) []media.Result {
	out := make([]media.Result, len(files))
	for i, f := range files {
		out[i].File = f.Name
		if err := s.fail[f.Name]; err != nil {
			out[i].Err = err
			continue
		}
		out[i].URL = "https://cdn.test/" + f.Name
	}
	return out
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeValidation)
}
