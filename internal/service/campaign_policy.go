package service

import (
	"fundsphere/internal/models"
)

// Operation names a guarded campaign action.
type Operation string

const (
	OpAttachMedia Operation = "attach_media"
	OpPublish     Operation = "publish"
	OpPreview     Operation = "preview"
	OpPurgeDrafts Operation = "purge_drafts"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   string
	Role models.Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// ActorFor builds an Actor from a loaded user.
func ActorFor(u *models.User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{ID: u.ID, Role: u.Role}
}

// CampaignPolicy decides whether an actor may perform op on a campaign.
// campaign is nil for operations that are not bound to one record.
type CampaignPolicy interface {
	Authorize(actor Actor, campaign *models.Campaign, op Operation) error
}

// OwnershipPolicy lets owners mutate their own campaigns and reserves the
// draft purge for admins. Previews by anyone else resolve as not found so
// drafts do not leak.
type OwnershipPolicy struct{}

func (OwnershipPolicy) Authorize(actor Actor, campaign *models.Campaign, op Operation) error {
	if actor.ID == "" {
		return models.NewUnauthorizedError("Authentication required")
	}

	switch op {
	case OpPurgeDrafts:
		if !actor.IsAdmin() {
			return models.NewForbiddenError("Admin access required")
		}
		return nil
	case OpPreview:
		if campaign == nil || !(campaign.IsOwnedBy(actor.ID) || actor.IsAdmin()) {
			return models.NewNotFoundError("Campaign", nil)
		}
		return nil
	case OpAttachMedia, OpPublish:
		if campaign == nil {
			return models.NewNotFoundError("Campaign", nil)
		}
		if !campaign.IsOwnedBy(actor.ID) {
			return models.NewForbiddenError("Only the campaign owner can perform this action")
		}
		return nil
	default:
		return models.NewForbiddenError("Operation not permitted")
	}
}
