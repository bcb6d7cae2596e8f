package models

// RosterAward is a point award made by a roster approval.
type RosterAward struct {
	USN    string `json:"usn"`
	Points int    `json:"points"`
}

// RosterApprovalResult summarises a bulk roster approval.
type RosterApprovalResult struct {
	ActivityID     string        `json:"activity_id"`
	Awarded        []RosterAward `json:"awarded"`
	Unmatched      []string      `json:"unmatched"`
	AlreadyAwarded []string      `json:"already_awarded"`
	FailedTotals   []string      `json:"failed_totals,omitempty"`
	PointsAwarded  int64         `json:"points_awarded"`
}
