package models

import "time"

// Student represents a learner registered in the institution.
type Student struct {
	USN         string    `db:"usn" json:"usn"`
	Name        string    `db:"name" json:"name"`
	Email       string    `db:"email" json:"email"`
	TotalPoints int64     `db:"total_points" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentPoints is a student with the total derived from the ledger.
type StudentPoints struct {
	USN         string `db:"usn" json:"usn"`
	Name        string `db:"name" json:"name"`
	Email       string `db:"email" json:"email,omitempty"`
	TotalPoints int64  `db:"total_points" json:"total_points"`
	Activities  int    `db:"activities" json:"activities"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Page     int
	PageSize int
}

// ReconcileResult reports a recomputation of a student's cached total.
type ReconcileResult struct {
	USN         string `json:"usn"`
	LedgerTotal int64  `json:"ledger_total"`
	CachedTotal int64  `json:"cached_total"`
	Drift       int64  `json:"drift"`
	Corrected   bool   `json:"corrected"`
}

// StudentPointsDetail is a student's derived total with the ledger entries behind it.
type StudentPointsDetail struct {
	StudentPoints
	Entries []StudentActivity `json:"entries"`
}
