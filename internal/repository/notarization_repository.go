package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-points-api/internal/models"
)

// NotarizationRepository stores the local idempotency record of submissions.
type NotarizationRepository struct {
	db *sqlx.DB
}

// NewNotarizationRepository constructs the repository.
func NewNotarizationRepository(db *sqlx.DB) *NotarizationRepository {
	return &NotarizationRepository{db: db}
}

// FindByComplaint returns the recorded submission. sql.ErrNoRows when none.
func (r *NotarizationRepository) FindByComplaint(ctx context.Context, complaintID string) (*models.Notarization, error) {
	const query = `SELECT complaint_id, transaction_hash, points, confirmed, submitted_by, created_at FROM notarizations WHERE complaint_id = $1`
	var n models.Notarization
	if err := r.db.GetContext(ctx, &n, query, complaintID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find notarization: %w", err)
	}
	return &n, nil
}

// Save records a submission. An unconfirmed record is replaced, so a
// resubmission or a confirmation lands; a confirmed record is never replaced.
func (r *NotarizationRepository) Save(ctx context.Context, n *models.Notarization) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notarizations (complaint_id, transaction_hash, points, confirmed, submitted_by, created_at)
VALUES (:complaint_id, :transaction_hash, :points, :confirmed, :submitted_by, :created_at)
ON CONFLICT (complaint_id) DO UPDATE SET
    transaction_hash = EXCLUDED.transaction_hash,
    points = EXCLUDED.points,
    confirmed = EXCLUDED.confirmed,
    submitted_by = EXCLUDED.submitted_by
WHERE notarizations.confirmed = false`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("save notarization: %w", err)
	}
	return nil
}
