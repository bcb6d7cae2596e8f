package models

import "time"

// ActivityStatus is the lifecycle of an activity's roster approval.
type ActivityStatus string

const (
	ActivityPending  ActivityStatus = "Pending"
	ActivityApproved ActivityStatus = "Approved"
	ActivityRejected ActivityStatus = "Rejected"
)

// Activity is an event that students can earn points for.
type Activity struct {
	ID              string         `db:"id" json:"activity_id"`
	Title           string         `db:"title" json:"title"`
	Description     string         `db:"description" json:"description"`
	Points          int            `db:"points" json:"points"`
	EventDate       time.Time      `db:"event_date" json:"event_date"`
	OrganizedBy     string         `db:"organized_by" json:"organized_by"`
	Status          ActivityStatus `db:"status" json:"status"`
	ApprovedBy      *string        `db:"approved_by" json:"approved_by,omitempty"`
	RosterReference *string        `db:"roster_reference" json:"roster_reference,omitempty"`
	IsSDG           *bool          `db:"is_sdg" json:"is_sdg,omitempty"`
	SDGCategory     *string        `db:"sdg_category" json:"sdg_category,omitempty"`
	ClassifiedAt    *time.Time     `db:"classified_at" json:"classified_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// HasRoster reports whether a roster link is attached.
func (a Activity) HasRoster() bool {
	return a.RosterReference != nil && *a.RosterReference != ""
}

// ActivityFilter narrows activity listings.
type ActivityFilter struct {
	OrganizedBy   string
	Status        ActivityStatus
	FromDate      *time.Time
	PendingRoster bool
	Page          int
	PageSize      int
}

// ActivityClassification is the SDG annotation stored for an activity.
type ActivityClassification struct {
	IsSDG        bool      `db:"is_sdg"`
	SDGCategory  *string   `db:"sdg_category"`
	ClassifiedAt time.Time `db:"classified_at"`
}
