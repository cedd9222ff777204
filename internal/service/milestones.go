package service

import (
	"fmt"

	"fundsphere/internal/models"
)

// MilestoneValidator checks a milestone list as a whole, after each entry
// has passed the per-item checks.
type MilestoneValidator interface {
	Validate(milestones []models.Milestone) error
}

// PermissiveMilestones accepts any list of individually valid milestones.
type PermissiveMilestones struct{}

func (PermissiveMilestones) Validate([]models.Milestone) error { return nil }

// StrictMilestones requires strictly ascending percentages whose sum does
// not exceed 100.
type StrictMilestones struct{}

func (StrictMilestones) Validate(milestones []models.Milestone) error {
	sum := 0
	for i, m := range milestones {
		if i > 0 && m.Percentage <= milestones[i-1].Percentage {
			return models.NewValidationError(fmt.Sprintf("Milestone %d must have a higher percentage than the previous one", i+1))
		}
		sum += m.Percentage
	}
	if sum > 100 {
		return models.NewValidationError("Milestone percentages cannot add up to more than 100")
	}
	return nil
}

// MilestoneValidatorFor picks the validator for the strict flag.
func MilestoneValidatorFor(strict bool) MilestoneValidator {
	if strict {
		return StrictMilestones{}
	}
	return PermissiveMilestones{}
}
