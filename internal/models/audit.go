package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transition reasons recorded in the campaign audit log.
const (
	TransitionReasonPublish     = "publish"
	TransitionReasonPurgeDrafts = "purge_drafts"
)

// CampaignTransition records a status change of a campaign, or a bulk purge
// when CampaignID is empty.
type CampaignTransition struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	CampaignID string         `gorm:"size:36;index" json:"campaignId,omitempty" bson:"campaign_id,omitempty"`
	FromStatus CampaignStatus `gorm:"size:16" json:"fromStatus" bson:"from_status"`
	ToStatus   CampaignStatus `gorm:"size:16" json:"toStatus,omitempty" bson:"to_status,omitempty"`
	ChangedBy  string         `gorm:"size:36;not null" json:"changedBy" bson:"changed_by"`
	Reason     string         `gorm:"size:64;not null" json:"reason" bson:"reason"`
	Affected   int64          `gorm:"not null;default:1" json:"affected" bson:"affected"`
	CreatedAt  time.Time      `json:"createdAt" bson:"created_at"`
}

func (t *CampaignTransition) BeforeCreate(_ *gorm.DB) error {
	t.Prepare()
	return nil
}

// Prepare assigns an id when unset.
func (t *CampaignTransition) Prepare() {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
}

// DeletionIntentState tracks progress of a user cascade deletion.
type DeletionIntentState string

const (
	DeletionIntentPending DeletionIntentState = "pending"
	DeletionIntentDone    DeletionIntentState = "done"
)

// DeletionIntent is the persisted record of a requested user deletion.
// It is written before the cascade runs and marked done afterwards, so an
// interrupted cascade can be retried.
type DeletionIntent struct {
	ID          string              `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	UserID      string              `gorm:"size:36;not null;index" json:"userId" bson:"user_id"`
	RequestedBy string              `gorm:"size:36" json:"requestedBy" bson:"requested_by"`
	State       DeletionIntentState `gorm:"size:16;not null;default:pending;index" json:"state" bson:"state"`
	Attempts    int                 `gorm:"not null;default:0" json:"attempts" bson:"attempts"`
	LastError   string              `gorm:"type:text" json:"lastError,omitempty" bson:"last_error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time           `json:"updatedAt" bson:"updated_at"`
}

func (d *DeletionIntent) BeforeCreate(_ *gorm.DB) error {
	d.Prepare()
	return nil
}

// Prepare assigns an id and the pending state when unset.
func (d *DeletionIntent) Prepare() {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.State == "" {
		d.State = DeletionIntentPending
	}
}
