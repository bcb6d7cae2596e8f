package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/activity-points-api/internal/models"
)

const studentColumns = `usn, name, email, total_points, created_at, updated_at`

// pointsSelect derives totals from the ledger rather than the cached column.
const pointsSelect = `SELECT s.usn, s.name, s.email, COALESCE(SUM(sa.points), 0) AS total_points, COUNT(sa.id) AS activities
FROM students s
LEFT JOIN student_activities sa ON sa.usn = s.usn`

// StudentRepository handles persistence of students.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a new repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByUSN returns a student by canonical usn.
func (r *StudentRepository) FindByUSN(ctx context.Context, usn string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE usn = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, usn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find student by usn: %w", err)
	}
	return &student, nil
}

// FindByEmail returns the student registered with the email address.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE LOWER(email) = LOWER($1)`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find student by email: %w", err)
	}
	return &student, nil
}

// FindByUSNs returns the students whose usn is in the set.
func (r *StudentRepository) FindByUSNs(ctx context.Context, usns []string) ([]models.Student, error) {
	if len(usns) == 0 {
		return []models.Student{}, nil
	}
	query := `SELECT ` + studentColumns + ` FROM students WHERE usn = ANY($1) ORDER BY usn`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, pq.Array(usns)); err != nil {
		return nil, fmt.Errorf("find students by usn: %w", err)
	}
	return students, nil
}

// ListPoints returns students with ledger-derived totals.
func (r *StudentRepository) ListPoints(ctx context.Context, filter models.StudentFilter) ([]models.StudentPoints, int, error) {
	where := ""
	var args []interface{}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = " WHERE (s.usn ILIKE $1 OR s.name ILIKE $1)"
		args = append(args, "%"+s+"%")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("%s%s GROUP BY s.usn, s.name, s.email ORDER BY s.usn ASC LIMIT %d OFFSET %d", pointsSelect, where, pageSize, offset)
	var students []models.StudentPoints
	if err := r.db.SelectContext(ctx, &students, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list student points: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students s"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Leaderboard returns the top students by derived total.
func (r *StudentRepository) Leaderboard(ctx context.Context, limit int) ([]models.StudentPoints, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("%s GROUP BY s.usn, s.name, s.email ORDER BY total_points DESC, s.usn ASC LIMIT %d", pointsSelect, limit)
	var students []models.StudentPoints
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return students, nil
}

// AllPoints returns every student with derived totals, for reports.
func (r *StudentRepository) AllPoints(ctx context.Context) ([]models.StudentPoints, error) {
	query := pointsSelect + " GROUP BY s.usn, s.name, s.email ORDER BY s.usn ASC"
	var students []models.StudentPoints
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("all student points: %w", err)
	}
	return students, nil
}
