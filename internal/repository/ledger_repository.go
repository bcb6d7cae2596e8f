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

// ErrAlreadyAwarded is returned when a (usn, activity) ledger entry exists.
var ErrAlreadyAwarded = errors.New("ledger entry already exists for student and activity")

const insertLedgerEntry = `INSERT INTO student_activities (id, usn, activity_id, points, source, notarization_reference, roster_reference, created_at)
VALUES (:id, :usn, :activity_id, :points, :source, :notarization_reference, :roster_reference, :created_at)
ON CONFLICT (usn, activity_id) DO NOTHING
RETURNING id`

const incrementTotal = `UPDATE students SET total_points = total_points + $2, updated_at = $3 WHERE usn = $1`

// LedgerRepository appends point awards and maintains the cached totals.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs a ledger repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Exists reports whether the student already has an entry for the activity.
func (r *LedgerRepository) Exists(ctx context.Context, usn, activityID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM student_activities WHERE usn = $1 AND activity_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, usn, activityID); err != nil {
		return false, fmt.Errorf("check ledger entry: %w", err)
	}
	return exists, nil
}

// ListByUSN returns a student's entries, newest first.
func (r *LedgerRepository) ListByUSN(ctx context.Context, usn string) ([]models.StudentActivity, error) {
	const query = `SELECT sa.id, sa.usn, sa.activity_id, sa.points, sa.source, sa.notarization_reference, sa.roster_reference, sa.created_at,
       a.title AS activity_title
FROM student_activities sa
JOIN activities a ON a.id = sa.activity_id
WHERE sa.usn = $1
ORDER BY sa.created_at DESC`
	var entries []models.StudentActivity
	if err := r.db.SelectContext(ctx, &entries, query, usn); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// SumByUSN returns the ledger total for a student.
func (r *LedgerRepository) SumByUSN(ctx context.Context, usn string) (int64, error) {
	const query = `SELECT COALESCE(SUM(points), 0) FROM student_activities WHERE usn = $1`
	var total int64
	if err := r.db.GetContext(ctx, &total, query, usn); err != nil {
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return total, nil
}

// AppendBatch inserts the entries in one transaction and returns those that
// were new. Entries that collide with an existing (usn, activity) are skipped.
func (r *LedgerRepository) AppendBatch(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error) {
	inserted := make([]models.LedgerEntry, 0, len(entries))
	err := withTx(ctx, r.db, "ledger batch", func(tx *sqlx.Tx) error {
		for i := range entries {
			entry := entries[i]
			ok, err := insertEntry(ctx, tx, &entry)
			if err != nil {
				return err
			}
			if ok {
				inserted = append(inserted, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// IncrementTotal atomically adds delta to the cached total.
func (r *LedgerRepository) IncrementTotal(ctx context.Context, usn string, delta int) error {
	return incrementStudentTotal(ctx, r.db, usn, delta)
}

// Reconcile recomputes the cached total from the ledger under a row lock and
// returns the ledger total and the previous cached value.
func (r *LedgerRepository) Reconcile(ctx context.Context, usn string) (ledgerTotal, cached int64, err error) {
	err = withTx(ctx, r.db, "reconcile", func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &cached, `SELECT total_points FROM students WHERE usn = $1 FOR UPDATE`, usn); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return sql.ErrNoRows
			}
			return fmt.Errorf("lock student total: %w", err)
		}
		if err := tx.GetContext(ctx, &ledgerTotal, `SELECT COALESCE(SUM(points), 0) FROM student_activities WHERE usn = $1`, usn); err != nil {
			return fmt.Errorf("sum ledger entries: %w", err)
		}
		if ledgerTotal == cached {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE students SET total_points = $2, updated_at = $3 WHERE usn = $1`, usn, ledgerTotal, time.Now().UTC()); err != nil {
			return fmt.Errorf("store reconciled total: %w", err)
		}
		return nil
	})
	return ledgerTotal, cached, err
}

func insertEntry(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	rows, err := sqlx.NamedQueryContext(ctx, tx, insertLedgerEntry, entry)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	inserted := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return inserted, nil
}

func incrementStudentTotal(ctx context.Context, db sqlx.ExecerContext, usn string, delta int) error {
	res, err := db.ExecContext(ctx, incrementTotal, usn, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("increment total for %s: %w", usn, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment total rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("increment total for %s: %w", usn, sql.ErrNoRows)
	}
	return nil
}
