package models

import "time"

// Notarization records the transaction that anchored a complaint approval.
// Confirmed is false while the transaction was broadcast but not yet seen
// mined. Points is what the transaction attests; nil on records written
// before it was tracked.
type Notarization struct {
	ComplaintID     string    `db:"complaint_id" json:"complaint_id"`
	TransactionHash string    `db:"transaction_hash" json:"transaction_hash"`
	Points          *int      `db:"points" json:"points,omitempty"`
	Confirmed       bool      `db:"confirmed" json:"confirmed"`
	SubmittedBy     string    `db:"submitted_by" json:"submitted_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
