package models

import "time"

// ComplaintStatus tracks a student's claim through verification.
type ComplaintStatus string

const (
	ComplaintPending  ComplaintStatus = "pending"
	ComplaintApproved ComplaintStatus = "approved"
	ComplaintRejected ComplaintStatus = "rejected"
)

// Complaint is a student's claim of participation in an activity.
type Complaint struct {
	ID                string          `db:"id" json:"complaint_id"`
	USN               string          `db:"usn" json:"usn"`
	ActivityID        string          `db:"activity_id" json:"activity_id"`
	Title             string          `db:"title" json:"title"`
	Description       string          `db:"description" json:"description"`
	EvidenceReference string          `db:"evidence_reference" json:"evidence_reference"`
	Status            ComplaintStatus `db:"status" json:"status"`
	Points            *int            `db:"points" json:"points,omitempty"`
	VerifiedBy        *string         `db:"verified_by" json:"verified_by,omitempty"`
	NotarizationHash  *string         `db:"notarization_hash" json:"notarization_hash,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	VerifiedAt        *time.Time      `db:"verified_at" json:"verified_at,omitempty"`
}

// ComplaintView adds resolvable links for clients.
type ComplaintView struct {
	Complaint
	ActivityTitle string `db:"activity_title" json:"activity_title,omitempty"`
	EvidenceURL   string `db:"-" json:"evidence_url,omitempty"`
	ExplorerURL   string `db:"-" json:"explorer_url,omitempty"`
}

// ComplaintDecision carries the columns written when a complaint is decided.
type ComplaintDecision struct {
	ComplaintID      string          `db:"id"`
	Status           ComplaintStatus `db:"status"`
	Points           *int            `db:"points"`
	VerifiedBy       string          `db:"verified_by"`
	NotarizationHash *string         `db:"notarization_hash"`
	VerifiedAt       time.Time       `db:"verified_at"`
}
