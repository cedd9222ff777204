// Package seed builds demo users and campaigns for development databases.
package seed

import (
	"fmt"
	"math"
	"strings"
	"time"

	"fundsphere/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// milestonePlans are strictly ascending and sum to at most 100, so seeded
// campaigns pass the strict milestone rules as well.
var milestonePlans = [][]int{
	{100},
	{25, 75},
	{10, 30, 60},
	{5, 15, 30, 50},
}

var causes = []string{
	"Clean Water", "School Supplies", "Community Garden", "Animal Shelter",
	"Library Renovation", "Medical Fund", "Solar Panels", "Youth Sports",
	"Food Bank", "Art Studio", "Disaster Relief", "Coding Bootcamp",
}

// Factory builds entities with realistic fake content. It never persists.
type Factory struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewFactory returns a Factory. A seed of 0 picks a random one.
func NewFactory(seed int64, now func() time.Time) *Factory {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Factory{faker: gofakeit.New(seed), now: now}
}

// BuildUser returns a creator-and-donor user. passwordHash is stored as is.
func (f *Factory) BuildUser(passwordHash string, overrides ...func(*models.User)) *models.User {
	first := f.faker.FirstName()
	last := f.faker.LastName()
	handle := strings.ToLower(fmt.Sprintf("%s_%s%d", first, last, f.faker.Number(10, 9999)))
	handle = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, handle)
	if len(handle) > 30 {
		handle = handle[:30]
	}
	handle = strings.Trim(handle, "_")

	user := &models.User{
		Username: handle,
		Email:    handle + "@" + f.faker.DomainName(),
		Password: passwordHash,
		Role:     models.RoleUser,
		UserType: models.NewUserTypes(models.UserTypeCreator, models.UserTypeDonor),
		Status:   models.UserStatusActive,
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// BuildCampaign returns a draft owned by owner with a deadline one week to
// four months out.
func (f *Factory) BuildCampaign(owner *models.User, overrides ...func(*models.Campaign)) *models.Campaign {
	cause := causes[f.faker.Number(0, len(causes)-1)]
	plan := milestonePlans[f.faker.Number(0, len(milestonePlans)-1)]

	milestones := make([]models.Milestone, 0, len(plan))
	for _, pct := range plan {
		milestones = append(milestones, models.Milestone{
			Percentage:  pct,
			Description: strings.TrimSuffix(f.faker.Sentence(6), "."),
		})
	}

	deadline := f.now().Add(time.Duration(f.faker.Number(7, 120)) * 24 * time.Hour).Truncate(time.Hour)
	goal := math.Round(f.faker.Float64Range(500, 50000)/50) * 50

	campaign := &models.Campaign{
		Title:       fmt.Sprintf("%s for %s", cause, f.faker.City()),
		Description: f.faker.Paragraph(2, 3, 12, "\n\n"),
		GoalAmount:  goal,
		Deadline:    &deadline,
		Milestones:  milestones,
		CreatedBy:   owner.ID,
		Status:      models.CampaignStatusDraft,
	}
	for _, override := range overrides {
		override(campaign)
	}
	return campaign
}
