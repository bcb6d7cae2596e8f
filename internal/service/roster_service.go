package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/pkg/cache"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/reporting"
	"github.com/noah-isme/activity-points-api/pkg/roster"
)

type rosterActivityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)
	MarkApproved(ctx context.Context, id, approvedBy string) error
	Disapprove(ctx context.Context, id string) error
}

type rosterStudentRepository interface {
	FindByUSNs(ctx context.Context, usns []string) ([]models.Student, error)
}

type rosterLedgerRepository interface {
	AppendBatch(ctx context.Context, entries []models.LedgerEntry) ([]models.LedgerEntry, error)
	IncrementTotal(ctx context.Context, usn string, delta int) error
}

type rosterParser interface {
	Parse(ctx context.Context, link string) (*roster.Roster, error)
}

// RosterConfig tunes bulk approvals.
type RosterConfig struct {
	AwardWorkers int
	LockTTL      time.Duration
}

// RosterDeps groups the collaborators of the roster reconciler.
type RosterDeps struct {
	Activities rosterActivityRepository
	Students   rosterStudentRepository
	Ledger     rosterLedgerRepository
	Parser     rosterParser
	Locker     cache.Locker
	Audit      auditRepository
	Cache      *CacheService
	Metrics    *MetricsService
	Reporter   reporting.Reporter
}

// RosterPreview is a parsed roster with its rows matched against students.
type RosterPreview struct {
	*roster.Roster
	Matched   []string `json:"matched"`
	Unmatched []string `json:"unmatched"`
}

// RosterService awards points to every student on an activity's roster.
type RosterService struct {
	deps   RosterDeps
	audit  auditTrail
	cfg    RosterConfig
	logger *zap.Logger
}

// NewRosterService constructs the reconciler.
func NewRosterService(deps RosterDeps, cfg RosterConfig, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AwardWorkers <= 0 {
		cfg.AwardWorkers = 8
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = cache.NewLocalLocker()
	}
	return &RosterService{deps: deps, audit: auditTrail{repo: deps.Audit, logger: logger}, cfg: cfg, logger: logger}
}

// ParseRoster fetches and parses a roster link.
func (s *RosterService) ParseRoster(ctx context.Context, link string) (*roster.Roster, error) {
	parsed, err := s.deps.Parser.Parse(ctx, link)
	if err != nil {
		if errors.Is(err, roster.ErrEmpty) {
			return nil, appErrors.Wrap(err, appErrors.ErrEmptyRoster.Code, appErrors.ErrEmptyRoster.Status, appErrors.ErrEmptyRoster.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrRosterParse.Code, appErrors.ErrRosterParse.Status, "roster could not be read")
	}
	return parsed, nil
}

// Preview parses a roster link and reports which usns match students.
func (s *RosterService) Preview(ctx context.Context, principal models.Principal, link string) (*RosterPreview, error) {
	if !principal.Is(models.RoleSuperadmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmins can preview rosters")
	}
	if link == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster link is required")
	}
	parsed, err := s.ParseRoster(ctx, roster.ExportURL(link))
	if err != nil {
		return nil, err
	}
	known, err := s.match(ctx, parsed)
	if err != nil {
		return nil, err
	}
	preview := &RosterPreview{Roster: parsed, Matched: []string{}, Unmatched: []string{}}
	for _, rec := range parsed.Records {
		if _, ok := known[rec.USN]; ok {
			preview.Matched = append(preview.Matched, rec.USN)
		} else {
			preview.Unmatched = append(preview.Unmatched, rec.USN)
		}
	}
	return preview, nil
}

// ApproveActivity awards the activity's points to every matched roster row
// and marks the activity approved.
func (s *RosterService) ApproveActivity(ctx context.Context, principal models.Principal, activityID string) (*models.RosterApprovalResult, error) {
	if !principal.Is(models.RoleSuperadmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmins can approve rosters")
	}

	unlock, err := s.deps.Locker.Acquire(ctx, "activity:"+activityID, s.cfg.LockTTL)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrLocked) {
			return nil, appErrors.Clone(appErrors.ErrLocked, "activity is being approved by another request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock activity")
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.logger.Warn("failed to release activity lock", zap.String("activity_id", activityID), zap.Error(err))
		}
	}()

	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.Status == models.ActivityApproved {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "activity already approved")
	}
	if !activity.HasRoster() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "activity has no roster")
	}

	result, err := s.award(ctx, principal, activity)
	if err != nil && result == nil {
		s.deps.Metrics.RecordRosterApproval("failed")
		return nil, err
	}
	return result, err
}

func (s *RosterService) award(ctx context.Context, principal models.Principal, activity *models.Activity) (*models.RosterApprovalResult, error) {
	parsed, err := s.ParseRoster(ctx, *activity.RosterReference)
	if err != nil {
		return nil, err
	}
	known, err := s.match(ctx, parsed)
	if err != nil {
		return nil, err
	}
	if len(known) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoMatch, fmt.Sprintf("none of the %d roster usns match a registered student", len(parsed.Records)))
	}

	result := &models.RosterApprovalResult{
		ActivityID:     activity.ID,
		Awarded:        []models.RosterAward{},
		Unmatched:      []string{},
		AlreadyAwarded: []string{},
	}
	entries := make([]models.LedgerEntry, 0, len(known))
	for _, rec := range parsed.Records {
		if _, ok := known[rec.USN]; !ok {
			result.Unmatched = append(result.Unmatched, rec.USN)
			continue
		}
		points := activity.Points
		if rec.Points != nil {
			points = *rec.Points
		}
		entries = append(entries, models.LedgerEntry{
			USN:             rec.USN,
			ActivityID:      activity.ID,
			Points:          points,
			Source:          models.LedgerSourceRoster,
			RosterReference: activity.RosterReference,
		})
	}

	inserted, err := s.deps.Ledger.AppendBatch(ctx, entries)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append ledger entries")
	}
	fresh := make(map[string]struct{}, len(inserted))
	for _, e := range inserted {
		fresh[e.USN] = struct{}{}
		result.Awarded = append(result.Awarded, models.RosterAward{USN: e.USN, Points: e.Points})
		result.PointsAwarded += int64(e.Points)
	}
	for _, e := range entries {
		if _, ok := fresh[e.USN]; !ok {
			result.AlreadyAwarded = append(result.AlreadyAwarded, e.USN)
		}
	}

	result.FailedTotals = s.incrementTotals(ctx, inserted)

	if err := s.deps.Activities.MarkApproved(ctx, activity.ID, principal.PrincipalID); err != nil {
		s.report(ctx, err, activity.ID, map[string]interface{}{"stage": "mark_approved", "awarded": len(inserted)})
		return nil, appErrors.Wrap(err, appErrors.ErrReconciliation.Code, appErrors.ErrReconciliation.Status, "points were awarded but the activity could not be marked approved")
	}

	if err := s.deps.Cache.Invalidate(ctx, leaderboardPattern); err != nil {
		s.logger.Warn("leaderboard invalidation failed", zap.Error(err))
	}
	s.deps.Metrics.AddPointsAwarded(string(models.LedgerSourceRoster), result.PointsAwarded)
	s.audit.record(ctx, principal, models.AuditActionRosterApprove, models.AuditResourceActivity, activity.ID, map[string]interface{}{
		"awarded":         len(result.Awarded),
		"unmatched":       len(result.Unmatched),
		"already_awarded": len(result.AlreadyAwarded),
		"failed_totals":   len(result.FailedTotals),
		"points_awarded":  result.PointsAwarded,
	})
	s.logger.Info("roster approved",
		zap.String("activity_id", activity.ID),
		zap.Int("awarded", len(result.Awarded)),
		zap.Int("unmatched", len(result.Unmatched)),
		zap.Int("already_awarded", len(result.AlreadyAwarded)),
	)

	if len(result.FailedTotals) > 0 {
		s.deps.Metrics.RecordRosterApproval("partial")
		partial := appErrors.Clone(appErrors.ErrPartialAward, fmt.Sprintf("%d of %d totals could not be updated", len(result.FailedTotals), len(inserted)))
		s.report(ctx, partial, activity.ID, map[string]interface{}{"failed_totals": result.FailedTotals})
		return result, partial
	}
	s.deps.Metrics.RecordRosterApproval("approved")
	return result, nil
}

// incrementTotals applies the cached-total increments with bounded concurrency
// and returns the usns whose increment failed.
func (s *RosterService) incrementTotals(ctx context.Context, entries []models.LedgerEntry) []string {
	var (
		mu     sync.Mutex
		failed []string
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.AwardWorkers)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if err := s.deps.Ledger.IncrementTotal(ctx, entry.USN, entry.Points); err != nil {
				s.logger.Error("total increment failed", zap.String("usn", entry.USN), zap.Int("points", entry.Points), zap.Error(err))
				mu.Lock()
				failed = append(failed, entry.USN)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// DisapproveActivity rejects the roster and detaches it from the activity.
func (s *RosterService) DisapproveActivity(ctx context.Context, principal models.Principal, activityID string) error {
	if !principal.Is(models.RoleSuperadmin) {
		return appErrors.Clone(appErrors.ErrForbidden, "only superadmins can disapprove rosters")
	}
	if err := s.deps.Activities.Disapprove(ctx, activityID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to disapprove activity")
		}
		if _, err := s.loadActivity(ctx, activityID); err != nil {
			return err
		}
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "activity already approved")
	}
	s.audit.record(ctx, principal, models.AuditActionRosterDisapprove, models.AuditResourceActivity, activityID, nil)
	return nil
}

// ListPendingRosters returns activities whose roster awaits approval.
func (s *RosterService) ListPendingRosters(ctx context.Context, principal models.Principal, page, pageSize int) ([]models.Activity, *models.Pagination, error) {
	if !principal.Is(models.RoleSuperadmin) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only superadmins review rosters")
	}
	filter := models.ActivityFilter{PendingRoster: true, Page: page, PageSize: pageSize}
	activities, total, err := s.deps.Activities.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending rosters")
	}
	return activities, paginate(page, pageSize, total), nil
}

func (s *RosterService) loadActivity(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.deps.Activities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}

func (s *RosterService) match(ctx context.Context, parsed *roster.Roster) (map[string]struct{}, error) {
	students, err := s.deps.Students.FindByUSNs(ctx, parsed.USNs())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to match students")
	}
	known := make(map[string]struct{}, len(students))
	for _, st := range students {
		known[roster.NormalizeUSN(st.USN)] = struct{}{}
	}
	return known, nil
}

func (s *RosterService) report(ctx context.Context, err error, activityID string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["activity_id"] = activityID
	if s.deps.Reporter == nil {
		s.logger.Error("roster approval needs reconciliation", zap.String("activity_id", activityID), zap.Error(err))
		return
	}
	s.deps.Reporter.Report(ctx, err, fields)
}
