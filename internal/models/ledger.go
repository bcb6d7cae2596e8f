package models

import "time"

// LedgerSource names the path that produced a ledger entry.
type LedgerSource string

const (
	LedgerSourceComplaint LedgerSource = "complaint"
	LedgerSourceRoster    LedgerSource = "roster"
)

// LedgerEntry is one append-only point award (student_activities).
type LedgerEntry struct {
	ID                    string       `db:"id" json:"id"`
	USN                   string       `db:"usn" json:"usn"`
	ActivityID            string       `db:"activity_id" json:"activity_id"`
	Points                int          `db:"points" json:"points"`
	Source                LedgerSource `db:"source" json:"source"`
	NotarizationReference *string      `db:"notarization_reference" json:"notarization_reference,omitempty"`
	RosterReference       *string      `db:"roster_reference" json:"roster_reference,omitempty"`
	CreatedAt             time.Time    `db:"created_at" json:"created_at"`
}

// StudentActivity is a ledger entry joined with its activity title.
type StudentActivity struct {
	LedgerEntry
	ActivityTitle string `db:"activity_title" json:"activity_title"`
	ExplorerURL   string `db:"-" json:"explorer_url,omitempty"`
}
