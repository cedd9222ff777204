package service

import (
	"context"
	"fmt"
	"log/slog"

	"fundsphere/internal/cache"
	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/observability"
	"fundsphere/internal/repository"
)

const reconcileBatch = 50

// UserDeleter removes users together with their campaigns. Every deletion
// is recorded as an intent first so an interrupted cascade can be retried
// by Reconcile.
type UserDeleter struct {
	intents   repository.IntentRepository
	cascade   repository.CascadeDeleter
	cache     *cache.Store
	campaigns CampaignCounter
}

// CampaignCounter reports how many campaigns a creator still owns.
type CampaignCounter interface {
	CountByCreator(ctx context.Context, creatorID string) (int64, error)
}

func NewUserDeleter(intents repository.IntentRepository, cascade repository.CascadeDeleter, store *cache.Store) *UserDeleter {
	return &UserDeleter{intents: intents, cascade: cascade, cache: store}
}

// WithLeftoverCheck makes a cascade count as failed while the user still
// owns campaigns afterwards, such as one created by a request that was in
// flight during the delete. The intent stays pending for Reconcile.
func (d *UserDeleter) WithLeftoverCheck(campaigns CampaignCounter) *UserDeleter {
	d.campaigns = campaigns
	return d
}

// Delete writes a deletion intent for userID and runs the cascade. It
// returns the number of campaigns removed.
func (d *UserDeleter) Delete(ctx context.Context, userID, requestedBy string) (_ int64, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "UserDeleter", "Delete")
	defer func() { observability.EndSpan(span, err) }()

	intent := &models.DeletionIntent{UserID: userID, RequestedBy: requestedBy}
	if err := d.intents.Create(ctx, intent); err != nil {
		return 0, err
	}
	return d.run(ctx, intent)
}

func (d *UserDeleter) run(ctx context.Context, intent *models.DeletionIntent) (int64, error) {
	campaigns, err := d.cascade.DeleteUserCascade(ctx, intent.UserID)
	if err == nil {
		err = d.checkLeftovers(ctx, intent.UserID)
	}
	if err != nil {
		observability.CascadeDeletes.WithLabelValues("failed").Inc()
		if markErr := d.intents.MarkFailed(ctx, intent.ID, err.Error()); markErr != nil {
			middleware.Logger.ErrorContext(ctx, "failed to record cascade failure",
				slog.String("intent_id", intent.ID),
				slog.String("error", markErr.Error()),
			)
		}
		middleware.Logger.ErrorContext(ctx, "user cascade delete failed",
			slog.String("intent_id", intent.ID),
			slog.String("user_id", intent.UserID),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	if err := d.intents.MarkDone(ctx, intent.ID); err != nil {
		// The cascade is idempotent; the reconciler will finish the intent.
		middleware.Logger.WarnContext(ctx, "failed to mark deletion intent done",
			slog.String("intent_id", intent.ID),
			slog.String("error", err.Error()),
		)
	}
	observability.CascadeDeletes.WithLabelValues("succeeded").Inc()
	d.cache.InvalidatePublished(ctx)

	middleware.Logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", intent.UserID),
		slog.String("requested_by", intent.RequestedBy),
		slog.Int64("campaigns", campaigns),
	)
	return campaigns, nil
}

func (d *UserDeleter) checkLeftovers(ctx context.Context, userID string) error {
	if d.campaigns == nil {
		return nil
	}
	left, err := d.campaigns.CountByCreator(ctx, userID)
	if err != nil {
		return err
	}
	if left > 0 {
		return models.NewInternalError(fmt.Errorf("%d campaign(s) still owned by deleted user %s", left, userID))
	}
	return nil
}

// Reconcile retries pending deletion intents. It returns how many completed.
func (d *UserDeleter) Reconcile(ctx context.Context) (int, error) {
	pending, err := d.intents.ListPending(ctx, reconcileBatch)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := d.run(ctx, &pending[i]); err != nil {
			continue
		}
		done++
	}
	return done, nil
}
