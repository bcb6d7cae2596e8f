package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-points-api/internal/models"
)

const complaintColumns = `c.id, c.usn, c.activity_id, c.title, c.description, c.evidence_reference, c.status, c.points,
       c.verified_by, c.notarization_hash, c.created_at, c.verified_at`

const decideComplaint = `UPDATE complaints
SET status = :status, points = :points, verified_by = :verified_by, notarization_hash = :notarization_hash, verified_at = :verified_at
WHERE id = :id AND status = 'pending'`

// ComplaintRepository persists complaints and their decisions.
type ComplaintRepository struct {
	db *sqlx.DB
}

// NewComplaintRepository constructs a complaint repository.
func NewComplaintRepository(db *sqlx.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// Create inserts a pending complaint.
func (r *ComplaintRepository) Create(ctx context.Context, complaint *models.Complaint) error {
	if complaint.ID == "" {
		complaint.ID = uuid.NewString()
	}
	if complaint.CreatedAt.IsZero() {
		complaint.CreatedAt = time.Now().UTC()
	}
	complaint.Status = models.ComplaintPending

	const query = `INSERT INTO complaints (id, usn, activity_id, title, description, evidence_reference, status, created_at)
VALUES (:id, :usn, :activity_id, :title, :description, :evidence_reference, :status, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, complaint); err != nil {
		return fmt.Errorf("create complaint: %w", err)
	}
	return nil
}

// FindByID returns a complaint. sql.ErrNoRows is returned unwrapped.
func (r *ComplaintRepository) FindByID(ctx context.Context, id string) (*models.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints c WHERE c.id = $1`
	var complaint models.Complaint
	if err := r.db.GetContext(ctx, &complaint, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find complaint: %w", err)
	}
	return &complaint, nil
}

// ListByUSN returns a student's complaints, newest first.
func (r *ComplaintRepository) ListByUSN(ctx context.Context, usn string) ([]models.ComplaintView, error) {
	query := `SELECT ` + complaintColumns + `, a.title AS activity_title
FROM complaints c
JOIN activities a ON a.id = c.activity_id
WHERE c.usn = $1
ORDER BY c.created_at DESC`
	var complaints []models.ComplaintView
	if err := r.db.SelectContext(ctx, &complaints, query, usn); err != nil {
		return nil, fmt.Errorf("list complaints by usn: %w", err)
	}
	return complaints, nil
}

// ListByActivity returns an activity's complaints with pending ones first.
func (r *ComplaintRepository) ListByActivity(ctx context.Context, activityID string) ([]models.ComplaintView, error) {
	query := `SELECT ` + complaintColumns + `, a.title AS activity_title
FROM complaints c
JOIN activities a ON a.id = c.activity_id
WHERE c.activity_id = $1
ORDER BY CASE c.status WHEN 'pending' THEN 0 ELSE 1 END, c.created_at ASC`
	var complaints []models.ComplaintView
	if err := r.db.SelectContext(ctx, &complaints, query, activityID); err != nil {
		return nil, fmt.Errorf("list complaints by activity: %w", err)
	}
	return complaints, nil
}

// Reject moves a pending complaint to rejected. sql.ErrNoRows means the
// complaint was no longer pending.
func (r *ComplaintRepository) Reject(ctx context.Context, decision models.ComplaintDecision) error {
	decision.Status = models.ComplaintRejected
	decision.Points = nil
	decision.NotarizationHash = nil
	return decide(ctx, r.db, decision)
}

// ApproveAndAward approves a pending complaint, appends its ledger entry and
// increments the student's total in one transaction.
func (r *ComplaintRepository) ApproveAndAward(ctx context.Context, decision models.ComplaintDecision, entry models.LedgerEntry) error {
	decision.Status = models.ComplaintApproved
	return withTx(ctx, r.db, "approve complaint", func(tx *sqlx.Tx) error {
		if err := decide(ctx, tx, decision); err != nil {
			return err
		}
		inserted, err := insertEntry(ctx, tx, &entry)
		if err != nil {
			return err
		}
		if !inserted {
			return ErrAlreadyAwarded
		}
		return incrementStudentTotal(ctx, tx, entry.USN, entry.Points)
	})
}

func decide(ctx context.Context, db sqlx.ExtContext, decision models.ComplaintDecision) error {
	if decision.VerifiedAt.IsZero() {
		decision.VerifiedAt = time.Now().UTC()
	}
	res, err := sqlx.NamedExecContext(ctx, db, decideComplaint, decision)
	if err != nil {
		return fmt.Errorf("decide complaint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decide complaint rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
