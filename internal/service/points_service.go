package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/roster"
)

var staffRoles = []models.UserRole{models.RoleCounsellor, models.RoleAdmin, models.RoleSuperadmin}

type pointsStudentRepository interface {
	FindByUSN(ctx context.Context, usn string) (*models.Student, error)
	ListPoints(ctx context.Context, filter models.StudentFilter) ([]models.StudentPoints, int, error)
	Leaderboard(ctx context.Context, limit int) ([]models.StudentPoints, error)
}

type pointsLedgerRepository interface {
	ListByUSN(ctx context.Context, usn string) ([]models.StudentActivity, error)
	SumByUSN(ctx context.Context, usn string) (int64, error)
	Reconcile(ctx context.Context, usn string) (ledgerTotal, cached int64, err error)
}

// LeaderboardConfig tunes the cached leaderboard.
type LeaderboardConfig struct {
	TTL  time.Duration
	Size int
}

// PointsService serves ledger-derived point totals.
type PointsService struct {
	students pointsStudentRepository
	ledger   pointsLedgerRepository
	identity studentResolver
	cache    *CacheService
	links    *Linker
	audit    auditTrail
	cfg      LeaderboardConfig
	logger   *zap.Logger
}

// NewPointsService constructs the points service.
func NewPointsService(students pointsStudentRepository, ledger pointsLedgerRepository, identity studentResolver, cache *CacheService, links *Linker, audit auditRepository, cfg LeaderboardConfig, logger *zap.Logger) *PointsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Size <= 0 {
		cfg.Size = 20
	}
	return &PointsService{
		students: students,
		ledger:   ledger,
		identity: identity,
		cache:    cache,
		links:    links,
		audit:    auditTrail{repo: audit, logger: logger},
		cfg:      cfg,
		logger:   logger,
	}
}

// List returns students with derived totals.
func (s *PointsService) List(ctx context.Context, principal models.Principal, filter models.StudentFilter) ([]models.StudentPoints, *models.Pagination, error) {
	if !principal.Is(staffRoles...) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list students")
	}
	students, total, err := s.students.ListPoints(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, paginate(filter.Page, filter.PageSize, total), nil
}

// Leaderboard returns the top students, served from cache when possible.
// The bool reports a cache hit.
func (s *PointsService) Leaderboard(ctx context.Context, principal models.Principal, limit int) ([]models.StudentPoints, bool, error) {
	if !principal.Is(staffRoles...) {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view the leaderboard")
	}
	if limit <= 0 || limit > 100 {
		limit = s.cfg.Size
	}
	var board []models.StudentPoints
	hit, err := s.cache.Remember(ctx, fmt.Sprintf("leaderboard:%d", limit), s.cfg.TTL, &board, func(ctx context.Context) (interface{}, error) {
		return s.students.Leaderboard(ctx, limit)
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build leaderboard")
	}
	return board, hit, nil
}

// StudentActivities returns a student's total and ledger entries. Students may
// only read their own.
func (s *PointsService) StudentActivities(ctx context.Context, principal models.Principal, usn string) (*models.StudentPointsDetail, error) {
	usn = roster.NormalizeUSN(usn)
	switch {
	case principal.Is(staffRoles...):
	case principal.Is(models.RoleStudent):
		self, err := s.identity.StudentFor(ctx, principal)
		if err != nil {
			return nil, err
		}
		if roster.NormalizeUSN(self.USN) != usn {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only view their own points")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view student points")
	}
	return s.detail(ctx, usn)
}

// MyPoints returns the calling student's total and ledger entries.
func (s *PointsService) MyPoints(ctx context.Context, principal models.Principal) (*models.StudentPointsDetail, error) {
	self, err := s.identity.StudentFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, self.USN)
}

func (s *PointsService) detail(ctx context.Context, usn string) (*models.StudentPointsDetail, error) {
	student, err := s.students.FindByUSN(ctx, usn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	entries, err := s.ledger.ListByUSN(ctx, student.USN)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger")
	}
	total, err := s.ledger.SumByUSN(ctx, student.USN)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total ledger")
	}
	if entries == nil {
		entries = []models.StudentActivity{}
	}
	s.links.decorateEntries(entries)
	return &models.StudentPointsDetail{
		StudentPoints: models.StudentPoints{
			USN:         student.USN,
			Name:        student.Name,
			Email:       student.Email,
			TotalPoints: total,
			Activities:  len(entries),
		},
		Entries: entries,
	}, nil
}

// Reconcile recomputes a student's cached total from the ledger.
func (s *PointsService) Reconcile(ctx context.Context, principal models.Principal, usn string) (*models.ReconcileResult, error) {
	if !principal.Is(models.RoleSuperadmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmins can reconcile totals")
	}
	usn = roster.NormalizeUSN(usn)
	ledgerTotal, cached, err := s.ledger.Reconcile(ctx, usn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile total")
	}
	result := &models.ReconcileResult{
		USN:         usn,
		LedgerTotal: ledgerTotal,
		CachedTotal: cached,
		Drift:       ledgerTotal - cached,
		Corrected:   ledgerTotal != cached,
	}
	if result.Corrected {
		s.logger.Warn("cached total drifted from ledger", zap.String("usn", usn), zap.Int64("drift", result.Drift))
		if err := s.cache.Invalidate(ctx, leaderboardPattern); err != nil {
			s.logger.Warn("leaderboard invalidation failed", zap.Error(err))
		}
	}
	s.audit.record(ctx, principal, models.AuditActionPointsReconcile, models.AuditResourceStudent, usn, map[string]interface{}{
		"ledger_total": ledgerTotal,
		"cached_total": cached,
	})
	return result, nil
}
