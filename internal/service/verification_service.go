package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/repository"
	"github.com/noah-isme/activity-points-api/pkg/cache"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/notary"
	"github.com/noah-isme/activity-points-api/pkg/reporting"
)

const leaderboardPattern = "leaderboard:*"

type verificationComplaintRepository interface {
	FindByID(ctx context.Context, id string) (*models.Complaint, error)
	ApproveAndAward(ctx context.Context, decision models.ComplaintDecision, entry models.LedgerEntry) error
	Reject(ctx context.Context, decision models.ComplaintDecision) error
}

type verificationActivityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
}

type verificationLedgerRepository interface {
	Exists(ctx context.Context, usn, activityID string) (bool, error)
}

type notarizationRepository interface {
	FindByComplaint(ctx context.Context, complaintID string) (*models.Notarization, error)
	Save(ctx context.Context, n *models.Notarization) error
}

type decisionNotifier interface {
	Notify(ctx context.Context, notice DecisionNotice)
}

// ApproveComplaintRequest carries the points an Admin awards.
type ApproveComplaintRequest struct {
	Points int `json:"points" validate:"required,min=1"`
}

// VerificationConfig tunes the verification engine.
type VerificationConfig struct {
	LockTTL time.Duration
}

// VerificationDeps groups the collaborators of the verification engine.
type VerificationDeps struct {
	Complaints    verificationComplaintRepository
	Activities    verificationActivityRepository
	Ledger        verificationLedgerRepository
	Notarizations notarizationRepository
	Notary        notary.Notarizer
	Locker        cache.Locker
	Audit         auditRepository
	Cache         *CacheService
	Metrics       *MetricsService
	Notifier      decisionNotifier
	Links         *Linker
	Reporter      reporting.Reporter
}

// VerificationService approves and rejects individual complaints.
type VerificationService struct {
	deps   VerificationDeps
	audit  auditTrail
	cfg    VerificationConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewVerificationService constructs the verification engine. A nil Notary
// approves without an on-chain record.
func NewVerificationService(deps VerificationDeps, cfg VerificationConfig, logger *zap.Logger) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = cache.NewLocalLocker()
	}
	return &VerificationService{deps: deps, audit: auditTrail{repo: deps.Audit, logger: logger}, cfg: cfg, logger: logger, now: time.Now}
}

// Approve notarizes the complaint, approves it and awards its points.
func (s *VerificationService) Approve(ctx context.Context, principal models.Principal, complaintID string, points int) (*models.Complaint, error) {
	if !principal.Is(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can approve complaints")
	}
	if points <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "points must be a positive integer")
	}

	unlock, err := s.lock(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	defer s.release(unlock, complaintID)

	complaint, activity, err := s.loadPending(ctx, principal, complaintID)
	if err != nil {
		return nil, err
	}

	awarded, err := s.deps.Ledger.Exists(ctx, complaint.USN, complaint.ActivityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ledger")
	}
	if awarded {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has points for this activity")
	}

	hash, err := s.notarize(ctx, principal, complaint, points)
	if err != nil {
		return nil, err
	}

	verifiedAt := s.now().UTC()
	decision := models.ComplaintDecision{
		ComplaintID:      complaint.ID,
		Points:           &points,
		VerifiedBy:       principal.PrincipalID,
		NotarizationHash: hash,
		VerifiedAt:       verifiedAt,
	}
	entry := models.LedgerEntry{
		USN:                   complaint.USN,
		ActivityID:            complaint.ActivityID,
		Points:                points,
		Source:                models.LedgerSourceComplaint,
		NotarizationReference: hash,
	}
	if err := s.deps.Complaints.ApproveAndAward(ctx, decision, entry); err != nil {
		return nil, s.approveFailure(ctx, complaint, hash, err)
	}

	complaint.Status = models.ComplaintApproved
	complaint.Points = &points
	complaint.VerifiedBy = &principal.PrincipalID
	complaint.NotarizationHash = hash
	complaint.VerifiedAt = &verifiedAt

	details := map[string]interface{}{"usn": complaint.USN, "activity_id": complaint.ActivityID, "points": points}
	if hash != nil {
		details["notarization_hash"] = *hash
	}
	s.audit.record(ctx, principal, models.AuditActionComplaintApprove, models.AuditResourceComplaint, complaint.ID, details)
	s.deps.Metrics.RecordComplaintDecision(string(models.ComplaintApproved))
	s.deps.Metrics.AddPointsAwarded(string(models.LedgerSourceComplaint), int64(points))
	s.invalidateLeaderboard(ctx)
	s.notify(ctx, complaint, activity)
	return complaint, nil
}

// Reject closes a pending complaint without awarding points.
func (s *VerificationService) Reject(ctx context.Context, principal models.Principal, complaintID string) (*models.Complaint, error) {
	if !principal.Is(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can reject complaints")
	}

	unlock, err := s.lock(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	defer s.release(unlock, complaintID)

	complaint, activity, err := s.loadPending(ctx, principal, complaintID)
	if err != nil {
		return nil, err
	}

	verifiedAt := s.now().UTC()
	err = s.deps.Complaints.Reject(ctx, models.ComplaintDecision{ComplaintID: complaint.ID, VerifiedBy: principal.PrincipalID, VerifiedAt: verifiedAt})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "complaint is no longer pending")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject complaint")
	}

	complaint.Status = models.ComplaintRejected
	complaint.VerifiedBy = &principal.PrincipalID
	complaint.VerifiedAt = &verifiedAt

	s.audit.record(ctx, principal, models.AuditActionComplaintReject, models.AuditResourceComplaint, complaint.ID, map[string]interface{}{
		"usn": complaint.USN, "activity_id": complaint.ActivityID,
	})
	s.deps.Metrics.RecordComplaintDecision(string(models.ComplaintRejected))
	s.invalidateLeaderboard(ctx)
	s.notify(ctx, complaint, activity)
	return complaint, nil
}

func (s *VerificationService) lock(ctx context.Context, complaintID string) (cache.Unlock, error) {
	unlock, err := s.deps.Locker.Acquire(ctx, "complaint:"+complaintID, s.cfg.LockTTL)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrLocked) {
			return nil, appErrors.Clone(appErrors.ErrLocked, "complaint is being decided by another request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock complaint")
	}
	return unlock, nil
}

func (s *VerificationService) release(unlock cache.Unlock, complaintID string) {
	if err := unlock(context.Background()); err != nil {
		s.logger.Warn("failed to release complaint lock", zap.String("complaint_id", complaintID), zap.Error(err))
	}
}

func (s *VerificationService) loadPending(ctx context.Context, principal models.Principal, complaintID string) (*models.Complaint, *models.Activity, error) {
	complaint, err := s.deps.Complaints.FindByID(ctx, complaintID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "complaint not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load complaint")
	}
	if complaint.Status != models.ComplaintPending {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "complaint already "+string(complaint.Status))
	}
	activity, err := s.deps.Activities.FindByID(ctx, complaint.ActivityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	if activity.OrganizedBy != principal.PrincipalID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "activity is organized by another admin")
	}
	return complaint, activity, nil
}

// notarize returns the transaction hash for the complaint, resuming from a
// recorded submission when there is one. A nil hash means no notary is
// configured.
func (s *VerificationService) notarize(ctx context.Context, principal models.Principal, complaint *models.Complaint, points int) (*string, error) {
	if s.deps.Notarizations != nil {
		existing, err := s.deps.Notarizations.FindByComplaint(ctx, complaint.ID)
		switch {
		case err == nil:
			return s.resume(ctx, principal, complaint, existing, points)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check notarization record")
		}
	}
	if s.deps.Notary == nil {
		return nil, nil
	}
	return s.submit(ctx, principal, complaint, points)
}

// resume continues from an earlier submission. The award must match the
// points that submission attests.
func (s *VerificationService) resume(ctx context.Context, principal models.Principal, complaint *models.Complaint, existing *models.Notarization, points int) (*string, error) {
	if existing.Points != nil && *existing.Points != points {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
			fmt.Sprintf("complaint was notarized with %d points; approve it with the same amount", *existing.Points))
	}
	hash := existing.TransactionHash
	if existing.Confirmed {
		s.logger.Info("reusing recorded notarization", zap.String("complaint_id", complaint.ID), zap.String("tx", hash))
		return &hash, nil
	}
	if s.deps.Notary == nil {
		return nil, appErrors.Clone(appErrors.ErrNotarization, "notarization "+hash+" is unconfirmed and no notary is configured")
	}

	state, err := s.deps.Notary.Status(ctx, hash)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotarization.Code, appErrors.ErrNotarization.Status, "failed to check pending notarization")
	}
	switch state {
	case notary.TxMined:
		existing.Confirmed = true
		existing.Points = &points
		if err := s.deps.Notarizations.Save(ctx, existing); err != nil {
			s.logger.Warn("failed to confirm notarization", zap.String("complaint_id", complaint.ID), zap.String("tx", hash), zap.Error(err))
		}
		s.logger.Info("pending notarization confirmed", zap.String("complaint_id", complaint.ID), zap.String("tx", hash))
		return &hash, nil
	case notary.TxPending:
		return nil, appErrors.Clone(appErrors.ErrNotarization, "notarization "+hash+" is not mined yet, retry later")
	}
	s.logger.Warn("pending notarization was dropped or reverted, resubmitting",
		zap.String("complaint_id", complaint.ID), zap.String("tx", hash))
	return s.submit(ctx, principal, complaint, points)
}

func (s *VerificationService) submit(ctx context.Context, principal models.Principal, complaint *models.Complaint, points int) (*string, error) {
	start := time.Now()
	hash, err := s.deps.Notary.Notarize(ctx, notary.Record{
		USN:               complaint.USN,
		ActivityID:        complaint.ActivityID,
		Points:            points,
		ComplaintID:       complaint.ID,
		EvidenceReference: complaint.EvidenceReference,
		Title:             complaint.Title,
		Description:       complaint.Description,
	})
	s.deps.Metrics.ObserveNotarization(time.Since(start), err != nil)

	var pending *notary.PendingError
	switch {
	case errors.As(err, &pending):
		if saveErr := s.record(ctx, principal, complaint.ID, pending.Hash, points, false); saveErr != nil {
			s.report(ctx, saveErr, complaint, &pending.Hash)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrNotarization.Code, appErrors.ErrNotarization.Status, "notarization submitted but not confirmed, retry to complete the approval")
	case errors.Is(err, notary.ErrAlreadyNotarized):
		s.report(ctx, err, complaint, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "complaint is already notarized on-chain but has no local record")
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrNotarization.Code, appErrors.ErrNotarization.Status, "failed to notarize complaint")
	}

	if saveErr := s.record(ctx, principal, complaint.ID, hash, points, true); saveErr != nil {
		s.logger.Warn("failed to record notarization", zap.String("complaint_id", complaint.ID), zap.String("tx", hash), zap.Error(saveErr))
	}
	return &hash, nil
}

func (s *VerificationService) record(ctx context.Context, principal models.Principal, complaintID, hash string, points int, confirmed bool) error {
	if s.deps.Notarizations == nil {
		return nil
	}
	return s.deps.Notarizations.Save(ctx, &models.Notarization{
		ComplaintID:     complaintID,
		TransactionHash: hash,
		Points:          &points,
		Confirmed:       confirmed,
		SubmittedBy:     principal.PrincipalID,
	})
}

func (s *VerificationService) approveFailure(ctx context.Context, complaint *models.Complaint, hash *string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrConflict, "complaint was decided concurrently")
	case errors.Is(err, repository.ErrAlreadyAwarded):
		return appErrors.Clone(appErrors.ErrConflict, "student already has points for this activity")
	case hash != nil:
		s.report(ctx, err, complaint, hash)
		return appErrors.Wrap(err, appErrors.ErrReconciliation.Code, appErrors.ErrReconciliation.Status, appErrors.ErrReconciliation.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve complaint")
	}
}

func (s *VerificationService) report(ctx context.Context, err error, complaint *models.Complaint, hash *string) {
	if s.deps.Reporter == nil {
		s.logger.Error("notarization needs reconciliation", zap.String("complaint_id", complaint.ID), zap.Error(err))
		return
	}
	fields := map[string]interface{}{
		"complaint_id": complaint.ID,
		"usn":          complaint.USN,
		"activity_id":  complaint.ActivityID,
	}
	if hash != nil {
		fields["notarization_hash"] = *hash
	}
	s.deps.Reporter.Report(ctx, err, fields)
}

func (s *VerificationService) invalidateLeaderboard(ctx context.Context) {
	if err := s.deps.Cache.Invalidate(ctx, leaderboardPattern); err != nil {
		s.logger.Warn("leaderboard invalidation failed", zap.Error(err))
	}
}

func (s *VerificationService) notify(ctx context.Context, complaint *models.Complaint, activity *models.Activity) {
	if s.deps.Notifier == nil {
		return
	}
	notice := DecisionNotice{
		ComplaintID:    complaint.ID,
		USN:            complaint.USN,
		ComplaintTitle: complaint.Title,
		ActivityTitle:  activity.Title,
		Status:         complaint.Status,
		ExplorerURL:    s.deps.Links.explorer(complaint.NotarizationHash),
	}
	if complaint.Points != nil {
		notice.Points = *complaint.Points
	}
	s.deps.Notifier.Notify(ctx, notice)
}
