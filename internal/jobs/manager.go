// Package jobs runs the background jobs of the API on a gocron scheduler.
package jobs

import (
	"fmt"
	"log/slog"

	"fundsphere/internal/middleware"

	"github.com/go-co-op/gocron/v2"
)

// Job is a named unit of scheduled work.
type Job interface {
	Name() string
	Schedule() gocron.JobDefinition
	Execute()
}

// Manager owns the scheduler and its registered jobs.
type Manager struct {
	scheduler gocron.Scheduler
}

func NewManager() (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Manager{scheduler: s}, nil
}

// Register adds job. Overlapping runs of one job are rescheduled, never
// stacked.
func (m *Manager) Register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.Schedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", job.Name(), err)
	}
	middleware.Logger.Info("job registered", slog.String("job", job.Name()))
	return nil
}

func (m *Manager) Start() {
	m.scheduler.Start()
	middleware.Logger.Info("job scheduler started", slog.Int("jobs", len(m.scheduler.Jobs())))
}

// Stop shuts the scheduler down, waiting for running jobs.
func (m *Manager) Stop() error {
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	middleware.Logger.Info("job scheduler stopped")
	return nil
}
