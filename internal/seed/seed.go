package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "Fundsphere!2024"

// Options configures a seeding run.
type Options struct {
	NumUsers         int
	CampaignsPerUser int
	PublishedPercent int
	// HashCost overrides the bcrypt cost; zero keeps the default.
	HashCost         int
}

// Result counts what a run created.
type Result struct {
	Users     int
	Campaigns int
	Published int
}

// Seeder writes factory output through the repositories, so it works with
// either store driver.
type Seeder struct {
	stores  *repository.Stores
	factory *Factory
}

func NewSeeder(stores *repository.Stores, factory *Factory) *Seeder {
	return &Seeder{stores: stores, factory: factory}
}

// Run creates opts.NumUsers users, each owning opts.CampaignsPerUser
// campaigns. Roughly PublishedPercent of the campaigns are published.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.NumUsers <= 0 {
		return nil, errors.New("seed: at least one user is required")
	}
	cost := opts.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	res := &Result{}
	for i := 0; i < opts.NumUsers; i++ {
		user := s.factory.BuildUser(string(hash))
		if err := s.stores.Users.Create(ctx, user); err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) && appErr.Code == models.CodeConflict {
				continue
			}
			return res, fmt.Errorf("create user: %w", err)
		}
		res.Users++

		for j := 0; j < opts.CampaignsPerUser; j++ {
			campaign := s.factory.BuildCampaign(user)
			if err := s.stores.Campaigns.Create(ctx, campaign); err != nil {
				return res, fmt.Errorf("create campaign: %w", err)
			}
			res.Campaigns++

			if s.factory.faker.Number(1, 100) > opts.PublishedPercent {
				continue
			}
			if _, _, err := s.stores.Campaigns.Publish(ctx, campaign.ID, s.factory.now()); err != nil {
				return res, fmt.Errorf("publish campaign: %w", err)
			}
			res.Published++
		}
	}

	middleware.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", res.Users),
		slog.Int("campaigns", res.Campaigns),
		slog.Int("published", res.Published),
	)
	return res, nil
}
