package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionComplaintApprove = "COMPLAINT_APPROVE"
	AuditActionComplaintReject  = "COMPLAINT_REJECT"
	AuditActionActivityCreate   = "ACTIVITY_CREATE"
	AuditActionRosterApprove    = "ROSTER_APPROVE"
	AuditActionRosterDisapprove = "ROSTER_DISAPPROVE"
	AuditActionPointsReconcile  = "POINTS_RECONCILE"
)

// Audited resource kinds.
const (
	AuditResourceComplaint = "complaint"
	AuditResourceActivity  = "activity"
	AuditResourceStudent   = "student"
)

// AuditLog represents an audit trail record. Details holds a JSON document.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorRole  UserRole  `db:"actor_role" json:"actor_role"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID string    `db:"resource_id" json:"resource_id"`
	Details    *string   `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
