package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"fundsphere/internal/cache"
	"fundsphere/internal/featureflags"
	"fundsphere/internal/media"
	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/notifications"
	"fundsphere/internal/observability"
	"fundsphere/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// MediaIngestor turns uploaded files into public URLs.
type MediaIngestor interface {
	IngestAll(ctx context.Context, files []media.File) []media.Result
}

// CampaignService runs the campaign lifecycle: draft creation, media
// attachment, publishing and the published listings.
type CampaignService struct {
	campaigns  repository.CampaignRepository
	audit      repository.AuditRepository
	ingestor   MediaIngestor
	policy     CampaignPolicy
	milestones MilestoneValidator
	flags      FlagEvaluator
	events     EventPublisher
	clock      Clock
	cache      *cache.Store
	cacheTTL   time.Duration
}

// FlagEvaluator reports whether a feature flag is on for a subject.
type FlagEvaluator interface {
	Enabled(name, subject string) bool
}

// EventPublisher fans campaign lifecycle events out to other processes.
type EventPublisher interface {
	PublishCampaignEvent(ctx context.Context, ev notifications.CampaignEvent) error
}

// CampaignDeps are the collaborators of CampaignService. Policy, Milestones,
// Clock and CacheTTL fall back to defaults when zero. Flags and Events are
// optional.
type CampaignDeps struct {
	Campaigns  repository.CampaignRepository
	Audit      repository.AuditRepository
	Ingestor   MediaIngestor
	Policy     CampaignPolicy
	Milestones MilestoneValidator
	Flags      FlagEvaluator
	Events     EventPublisher
	Clock      Clock
	Cache      *cache.Store
	CacheTTL   time.Duration
}

type CreateCampaignInput struct {
	CreatorID   string
	Title       string
	Description string
	GoalAmount  float64
	Milestones  []models.Milestone
	Deadline    *time.Time
}

type ListPublishedInput struct {
	// CreatorID scopes the listing to one owner when set.
	CreatorID *string
}

// MediaFailure describes one file that was not attached.
type MediaFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// MediaAttachResult is the outcome of AttachMedia. Media is the full media
// list of the campaign after the append.
type MediaAttachResult struct {
	Media    []string       `json:"media"`
	Uploaded int            `json:"uploaded"`
	Failed   []MediaFailure `json:"failed"`
}

func NewCampaignService(d CampaignDeps) *CampaignService {
	if d.Policy == nil {
		d.Policy = OwnershipPolicy{}
	}
	if d.Milestones == nil {
		d.Milestones = PermissiveMilestones{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = cache.DefaultPublishedTTL
	}
	return &CampaignService{
		campaigns:  d.Campaigns,
		audit:      d.Audit,
		ingestor:   d.Ingestor,
		policy:     d.Policy,
		milestones: d.Milestones,
		flags:      d.Flags,
		events:     d.Events,
		clock:      d.Clock,
		cache:      d.Cache,
		cacheTTL:   d.CacheTTL,
	}
}

func (s *CampaignService) Create(ctx context.Context, in CreateCampaignInput) (_ *models.Campaign, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CampaignService", "Create",
		attribute.String("campaign.creator_id", in.CreatorID))
	defer func() { observability.EndSpan(span, err) }()

	if in.CreatorID == "" {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	campaign, err := s.buildDraft(in)
	if err != nil {
		return nil, err
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("creator_id", campaign.CreatedBy),
	)
	return campaign, nil
}

func (s *CampaignService) buildDraft(in CreateCampaignInput) (*models.Campaign, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if description == "" {
		return nil, models.NewValidationError("Description is required")
	}
	if math.IsNaN(in.GoalAmount) || math.IsInf(in.GoalAmount, 0) || in.GoalAmount <= 0 {
		return nil, models.NewValidationError("Goal amount must be greater than zero")
	}
	if in.Deadline == nil || in.Deadline.IsZero() {
		return nil, models.NewValidationError("Deadline is required")
	}
	now := s.clock.Now()
	deadline := in.Deadline.UTC()
	if !deadline.After(now) {
		return nil, models.NewValidationError("Deadline must be in the future")
	}

	milestones := make([]models.Milestone, 0, len(in.Milestones))
	for _, m := range in.Milestones {
		if m.Percentage < 1 || m.Percentage > 100 {
			return nil, models.NewValidationError("Milestone percentage must be between 1 and 100")
		}
		desc := strings.TrimSpace(m.Description)
		if desc == "" {
			return nil, models.NewValidationError("Milestone description is required")
		}
		milestones = append(milestones, models.Milestone{Percentage: m.Percentage, Description: desc})
	}
	if err := s.milestoneValidator(in.CreatorID).Validate(milestones); err != nil {
		return nil, err
	}

	return &models.Campaign{
		Title:       title,
		Description: description,
		GoalAmount:  in.GoalAmount,
		Deadline:    &deadline,
		Milestones:  milestones,
		Media:       []string{},
		CreatedBy:   in.CreatorID,
		Status:      models.CampaignStatusDraft,
	}, nil
}

// milestoneValidator returns the strict rules for creators in the
// strict_milestones rollout and the configured validator otherwise.
func (s *CampaignService) milestoneValidator(creatorID string) MilestoneValidator {
	if s.flags != nil && s.flags.Enabled(featureflags.StrictMilestones, creatorID) {
		return StrictMilestones{}
	}
	return s.milestones
}

func (s *CampaignService) publishEvent(ctx context.Context, ev notifications.CampaignEvent) {
	if s.events == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.clock.Now()
	}
	if err := s.events.PublishCampaignEvent(ctx, ev); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish campaign event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}

// AttachMedia ingests files and appends the successful URLs to the campaign
// in one atomic append. Failed files are reported and skipped.
func (s *CampaignService) AttachMedia(ctx context.Context, campaignID string, actor Actor, files []media.File) (_ *MediaAttachResult, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CampaignService", "AttachMedia",
		attribute.String("campaign.id", campaignID),
		attribute.Int("media.files", len(files)))
	defer func() { observability.EndSpan(span, err) }()

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, campaign, OpAttachMedia); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, models.NewValidationError("At least one media file is required")
	}
	if s.ingestor == nil {
		return nil, models.NewInternalError(errors.New("media ingestion is not configured"))
	}

	result := &MediaAttachResult{Failed: []MediaFailure{}}
	urls := make([]string, 0, len(files))
	for _, r := range s.ingestor.IngestAll(ctx, files) {
		if r.Err != nil {
			result.Failed = append(result.Failed, MediaFailure{File: r.File, Error: r.Err.Error()})
			continue
		}
		urls = append(urls, r.URL)
	}

	if len(urls) == 0 {
		result.Media = campaign.Media
		if result.Media == nil {
			result.Media = []string{}
		}
		return result, nil
	}

	all, err := s.campaigns.AppendMedia(ctx, campaignID, urls, s.clock.Now())
	if err != nil {
		return nil, err
	}
	result.Media = all
	result.Uploaded = len(urls)

	if campaign.Status == models.CampaignStatusPublished {
		s.cache.InvalidatePublished(ctx)
	}
	s.publishEvent(ctx, notifications.CampaignEvent{
		Type:       notifications.EventMediaAttached,
		CampaignID: campaignID,
		ActorID:    actor.ID,
		Affected:   int64(result.Uploaded),
	})

	middleware.Logger.InfoContext(ctx, "campaign media attached",
		slog.String("campaign_id", campaignID),
		slog.Int("uploaded", result.Uploaded),
		slog.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// Publish moves a draft to published. Publishing a published campaign is a
// no-op that returns the campaign unchanged.
func (s *CampaignService) Publish(ctx context.Context, campaignID string, actor Actor) (_ *models.Campaign, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CampaignService", "Publish",
		attribute.String("campaign.id", campaignID))
	defer func() { observability.EndSpan(span, err) }()

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, campaign, OpPublish); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updated, changed, err := s.campaigns.Publish(ctx, campaignID, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	transition := &models.CampaignTransition{
		CampaignID: campaignID,
		FromStatus: models.CampaignStatusDraft,
		ToStatus:   models.CampaignStatusPublished,
		ChangedBy:  actor.ID,
		Reason:     models.TransitionReasonPublish,
		Affected:   1,
		CreatedAt:  now,
	}
	if err := s.audit.Record(ctx, transition); err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to record campaign transition",
			slog.String("campaign_id", campaignID),
			slog.String("error", err.Error()),
		)
	}
	observability.CampaignTransitions.WithLabelValues(string(models.CampaignStatusDraft), string(models.CampaignStatusPublished)).Inc()
	s.cache.InvalidatePublished(ctx)
	s.publishEvent(ctx, notifications.CampaignEvent{
		Type:       notifications.EventCampaignPublished,
		CampaignID: campaignID,
		ActorID:    actor.ID,
		Affected:   1,
		OccurredAt: now,
	})

	middleware.Logger.InfoContext(ctx, "campaign published",
		slog.String("campaign_id", campaignID),
		slog.String("actor_id", actor.ID),
	)
	return updated, nil
}

// Preview returns a campaign in any status to its owner or an admin.
func (s *CampaignService) Preview(ctx context.Context, campaignID string, actor Actor) (*models.Campaign, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(actor, campaign, OpPreview); err != nil {
		return nil, err
	}
	return campaign, nil
}

// ListPublished returns the visible published campaigns, newest first. The
// global listing is served from the cache when one is configured.
func (s *CampaignService) ListPublished(ctx context.Context, in ListPublishedInput) (_ []*models.Campaign, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CampaignService", "ListPublished",
		attribute.Bool("campaign.scoped", in.CreatorID != nil))
	defer func() { observability.EndSpan(span, err) }()

	filter := repository.PublishedFilter{Now: s.clock.Now()}
	if in.CreatorID != nil {
		if *in.CreatorID == "" {
			return nil, models.NewUnauthorizedError("Authentication required")
		}
		filter.CreatorID = *in.CreatorID
		return s.campaigns.ListPublished(ctx, filter)
	}

	var campaigns []*models.Campaign
	err = s.cache.Aside(ctx, cache.PublishedCampaignsKey, &campaigns, s.cacheTTL, func() error {
		list, err := s.campaigns.ListPublished(ctx, filter)
		if err != nil {
			return err
		}
		campaigns = list
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A cached list may hold campaigns whose deadline passed after it was built.
	visible := make([]*models.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if c.VisibleAt(filter.Now) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// GetPublished fetches one published campaign. With creatorID set the lookup
// is limited to that owner and ignores the deadline.
func (s *CampaignService) GetPublished(ctx context.Context, campaignID string, creatorID *string) (*models.Campaign, error) {
	filter := repository.PublishedFilter{Now: s.clock.Now()}
	if creatorID != nil {
		if *creatorID == "" {
			return nil, models.NewUnauthorizedError("Authentication required")
		}
		filter.CreatorID = *creatorID
		filter.IgnoreDeadline = true
	}
	return s.campaigns.GetPublished(ctx, campaignID, filter)
}

// DeleteDrafts removes every draft campaign and returns how many were deleted.
func (s *CampaignService) DeleteDrafts(ctx context.Context, actor Actor) (_ int64, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "CampaignService", "DeleteDrafts",
		attribute.String("actor.id", actor.ID))
	defer func() { observability.EndSpan(span, err) }()

	if err := s.policy.Authorize(actor, nil, OpPurgeDrafts); err != nil {
		return 0, err
	}

	deleted, err := s.campaigns.DeleteDrafts(ctx)
	if err != nil {
		return 0, err
	}

	if err := s.audit.Record(ctx, &models.CampaignTransition{
		FromStatus: models.CampaignStatusDraft,
		ChangedBy:  actor.ID,
		Reason:     models.TransitionReasonPurgeDrafts,
		Affected:   deleted,
		CreatedAt:  s.clock.Now(),
	}); err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to record draft purge",
			slog.String("error", err.Error()),
		)
	}
	observability.DraftsPurged.Add(float64(deleted))
	s.cache.InvalidatePublished(ctx)
	s.publishEvent(ctx, notifications.CampaignEvent{
		Type:     notifications.EventDraftsPurged,
		ActorID:  actor.ID,
		Affected: deleted,
	})

	middleware.Logger.InfoContext(ctx, "draft campaigns deleted",
		slog.String("actor_id", actor.ID),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}
