package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-points-api/internal/models"
)

const activityColumns = `id, title, description, points, event_date, organized_by, status, approved_by, roster_reference,
       is_sdg, sdg_category, classified_at, created_at, updated_at`

// ActivityRepository persists activities.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs an activity repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create inserts a new pending activity.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	activity.CreatedAt = now
	activity.UpdatedAt = now
	activity.Status = models.ActivityPending

	const query = `INSERT INTO activities (id, title, description, points, event_date, organized_by, status, roster_reference, created_at, updated_at)
VALUES (:id, :title, :description, :points, :event_date, :organized_by, :status, :roster_reference, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// FindByID returns an activity. sql.ErrNoRows is returned unwrapped.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find activity: %w", err)
	}
	return &activity, nil
}

// List returns activities ordered by event date.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error) {
	var conditions []string
	var args []interface{}

	if filter.OrganizedBy != "" {
		args = append(args, filter.OrganizedBy)
		conditions = append(conditions, fmt.Sprintf("organized_by = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		conditions = append(conditions, fmt.Sprintf("event_date >= $%d", len(args)))
	}
	if filter.PendingRoster {
		conditions = append(conditions, "roster_reference IS NOT NULL AND roster_reference <> '' AND status <> 'Approved'")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM activities%s ORDER BY event_date ASC, created_at ASC LIMIT %d OFFSET %d", activityColumns, where, pageSize, offset)
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM activities"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}
	return activities, total, nil
}

// SaveClassification stores the SDG annotation.
func (r *ActivityRepository) SaveClassification(ctx context.Context, id string, cls models.ActivityClassification) error {
	const query = `UPDATE activities SET is_sdg = $2, sdg_category = $3, classified_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, cls.IsSDG, cls.SDGCategory, cls.ClassifiedAt); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

// MarkApproved approves the roster unless it already is. sql.ErrNoRows when
// the activity is missing or already approved.
func (r *ActivityRepository) MarkApproved(ctx context.Context, id, approvedBy string) error {
	const query = `UPDATE activities SET status = 'Approved', approved_by = $2, updated_at = $3 WHERE id = $1 AND status <> 'Approved'`
	return r.execConditional(ctx, "approve activity", query, id, approvedBy, time.Now().UTC())
}

// Disapprove rejects the roster and detaches it. sql.ErrNoRows when the
// activity is missing or already approved.
func (r *ActivityRepository) Disapprove(ctx context.Context, id string) error {
	const query = `UPDATE activities SET status = 'Rejected', approved_by = NULL, roster_reference = NULL, updated_at = $2 WHERE id = $1 AND status <> 'Approved'`
	return r.execConditional(ctx, "disapprove activity", query, id, time.Now().UTC())
}

func (r *ActivityRepository) execConditional(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
