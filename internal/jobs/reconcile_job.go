package jobs

import (
	"context"
	"log/slog"
	"time"

	"fundsphere/internal/middleware"

	"github.com/go-co-op/gocron/v2"
)

// DefaultReconcileInterval is used when no interval is configured.
const DefaultReconcileInterval = time.Minute

// Reconciler retries interrupted user deletions.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// ReconcileJob periodically finishes pending deletion intents.
type ReconcileJob struct {
	reconciler Reconciler
	interval   time.Duration
	timeout    time.Duration
}

func NewReconcileJob(r Reconciler, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &ReconcileJob{reconciler: r, interval: interval, timeout: interval}
}

func (j *ReconcileJob) Name() string {
	return "deletion_intent_reconciler"
}

func (j *ReconcileJob) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

func (j *ReconcileJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	done, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "deletion reconcile failed",
			slog.String("job", j.Name()),
			slog.String("error", err.Error()),
		)
		return
	}
	if done > 0 {
		middleware.Logger.InfoContext(ctx, "deletion intents reconciled",
			slog.String("job", j.Name()),
			slog.Int("completed", done),
		)
	}
}
