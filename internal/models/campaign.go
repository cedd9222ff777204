package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusPublished CampaignStatus = "published"
)

// Valid reports whether s is a known status.
func (s CampaignStatus) Valid() bool {
	return s == CampaignStatusDraft || s == CampaignStatusPublished
}

// Milestone is a named percentage checkpoint of the goal amount.
type Milestone struct {
	Percentage  int    `json:"percentage" bson:"percentage"`
	Description string `json:"description" bson:"description"`
}

// CreatorSummary is the public projection of a campaign owner.
type CreatorSummary struct {
	ID       string `gorm:"primaryKey" json:"id" bson:"_id"`
	Username string `json:"username" bson:"username"`
	Email    string `json:"email" bson:"email"`
	Role     Role   `json:"role" bson:"role"`
}

// TableName maps the projection onto the users table.
func (CreatorSummary) TableName() string {
	return "users"
}

// Campaign is a fundraising project owned by a creator.
type Campaign struct {
	ID           string          `gorm:"primaryKey;size:36" bson:"_id"`
	Title        string          `gorm:"size:200;not null" bson:"title"`
	Description  string          `gorm:"type:text;not null" bson:"description"`
	GoalAmount   float64         `gorm:"not null" bson:"goal_amount"`
	RaisedAmount float64         `gorm:"not null;default:0" bson:"raised_amount"`
	Deadline     *time.Time      `gorm:"index" bson:"deadline,omitempty"`
	Milestones   []Milestone     `gorm:"serializer:json;type:text" bson:"milestones"`
	Media        []string        `gorm:"-" bson:"media"`
	MediaItems   []CampaignMedia `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" bson:"-"`
	CreatedBy    string          `gorm:"size:36;not null;index" bson:"created_by"`
	Creator      *CreatorSummary `gorm:"foreignKey:CreatedBy;references:ID;-:migration" bson:"-"`
	Status       CampaignStatus  `gorm:"size:16;not null;default:draft;index" bson:"status"`
	PublishedAt  *time.Time      `bson:"published_at,omitempty"`
	CreatedAt    time.Time       `gorm:"index" bson:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at"`
}

// CampaignMedia is one media URL of a campaign. Rows are ordered by ID.
type CampaignMedia struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID string    `gorm:"size:36;not null;index" json:"campaignId"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName keeps the media table name singular-prefixed.
func (CampaignMedia) TableName() string {
	return "campaign_media"
}

// BeforeCreate assigns an id and the initial draft state.
func (c *Campaign) BeforeCreate(_ *gorm.DB) error {
	c.Prepare()
	return nil
}

// Prepare assigns an id, draft status and empty collections when unset.
func (c *Campaign) Prepare() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.Milestones == nil {
		c.Milestones = []Milestone{}
	}
	if c.Media == nil {
		c.Media = []string{}
	}
}

// IsOwnedBy reports whether userID created the campaign.
func (c *Campaign) IsOwnedBy(userID string) bool {
	return c != nil && userID != "" && c.CreatedBy == userID
}

// VisibleAt reports whether the campaign belongs in public listings at now.
func (c *Campaign) VisibleAt(now time.Time) bool {
	if c.Status != CampaignStatusPublished {
		return false
	}
	return c.Deadline == nil || !c.Deadline.Before(now)
}

// SyncMedia copies the ordered media rows into Media.
func (c *Campaign) SyncMedia() {
	if len(c.MediaItems) == 0 {
		if c.Media == nil {
			c.Media = []string{}
		}
		return
	}
	urls := make([]string, 0, len(c.MediaItems))
	for _, m := range c.MediaItems {
		urls = append(urls, m.URL)
	}
	c.Media = urls
}

type campaignJSON struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	GoalAmount   float64        `json:"goalAmount"`
	RaisedAmount float64        `json:"raisedAmount"`
	Deadline     *time.Time     `json:"deadline"`
	Milestones   []Milestone    `json:"milestones"`
	Media        []string       `json:"media"`
	CreatedBy    any            `json:"createdBy"`
	Status       CampaignStatus `json:"status"`
	PublishedAt  *time.Time     `json:"publishedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// MarshalJSON renders createdBy as the populated creator when loaded,
// otherwise as the owner id.
func (c Campaign) MarshalJSON() ([]byte, error) {
	out := campaignJSON{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		GoalAmount:   c.GoalAmount,
		RaisedAmount: c.RaisedAmount,
		Deadline:     c.Deadline,
		Milestones:   c.Milestones,
		Media:        c.Media,
		CreatedBy:    c.CreatedBy,
		Status:       c.Status,
		PublishedAt:  c.PublishedAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if out.Milestones == nil {
		out.Milestones = []Milestone{}
	}
	if out.Media == nil {
		out.Media = []string{}
	}
	if c.Creator != nil {
		out.CreatedBy = c.Creator
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both createdBy shapes produced by MarshalJSON.
func (c *Campaign) UnmarshalJSON(data []byte) error {
	var in struct {
		campaignJSON
		CreatedBy json.RawMessage `json:"createdBy"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Campaign{
		ID:           in.ID,
		Title:        in.Title,
		Description:  in.Description,
		GoalAmount:   in.GoalAmount,
		RaisedAmount: in.RaisedAmount,
		Deadline:     in.Deadline,
		Milestones:   in.Milestones,
		Media:        in.Media,
		Status:       in.Status,
		PublishedAt:  in.PublishedAt,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.UpdatedAt,
	}
	if len(in.CreatedBy) == 0 || string(in.CreatedBy) == "null" {
		return nil
	}
	if in.CreatedBy[0] == '{' {
		var creator CreatorSummary
		if err := json.Unmarshal(in.CreatedBy, &creator); err != nil {
			return err
		}
		c.Creator = &creator
		c.CreatedBy = creator.ID
		return nil
	}
	return json.Unmarshal(in.CreatedBy, &c.CreatedBy)
}
