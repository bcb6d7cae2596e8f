package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/storage"
)

type complaintIntakeRepository interface {
	Create(ctx context.Context, complaint *models.Complaint) error
	ListByUSN(ctx context.Context, usn string) ([]models.ComplaintView, error)
}

type studentResolver interface {
	StudentFor(ctx context.Context, principal models.Principal) (*models.Student, error)
}

// SubmitComplaintRequest holds the form fields of a complaint.
type SubmitComplaintRequest struct {
	ActivityID  string `form:"activity_id" json:"activity_id" validate:"required"`
	Title       string `form:"title" json:"title" validate:"required,max=200"`
	Description string `form:"description" json:"description" validate:"required"`
}

// EvidenceLimits bounds uploaded evidence.
type EvidenceLimits struct {
	MaxBytes     int64
	AllowedMIMEs []string
}

// ComplaintService handles complaint intake for students.
type ComplaintService struct {
	repo       complaintIntakeRepository
	activities *ActivityService
	students   studentResolver
	evidence   storage.EvidenceStore
	links      *Linker
	limits     EvidenceLimits
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewComplaintService constructs the intake service.
func NewComplaintService(repo complaintIntakeRepository, activities *ActivityService, students studentResolver, evidence storage.EvidenceStore, links *Linker, limits EvidenceLimits, validate *validator.Validate, logger *zap.Logger) *ComplaintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = 5 << 20
	}
	return &ComplaintService{
		repo:       repo,
		activities: activities,
		students:   students,
		evidence:   evidence,
		links:      links,
		limits:     limits,
		validator:  validate,
		logger:     logger,
	}
}

// Submit files a pending complaint with its evidence image.
func (s *ComplaintService) Submit(ctx context.Context, principal models.Principal, req SubmitComplaintRequest, evidence *storage.Evidence) (*models.ComplaintView, error) {
	if !principal.Is(models.RoleStudent) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can submit complaints")
	}
	req.ActivityID = strings.TrimSpace(req.ActivityID)
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title, description and activity_id are required")
	}
	if err := s.checkEvidence(evidence); err != nil {
		return nil, err
	}

	student, err := s.students.StudentFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	activity, err := s.activities.Get(ctx, req.ActivityID)
	if err != nil {
		return nil, err
	}

	reference, err := s.evidence.Put(ctx, *evidence)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
	}

	complaint := &models.Complaint{
		USN:               student.USN,
		ActivityID:        activity.ID,
		Title:             req.Title,
		Description:       req.Description,
		EvidenceReference: reference,
	}
	if err := s.repo.Create(ctx, complaint); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create complaint")
	}
	s.logger.Info("complaint submitted", zap.String("complaint_id", complaint.ID), zap.String("usn", student.USN), zap.String("activity_id", activity.ID))

	views := []models.ComplaintView{{Complaint: *complaint, ActivityTitle: activity.Title}}
	s.links.decorateComplaints(views)
	return &views[0], nil
}

func (s *ComplaintService) checkEvidence(evidence *storage.Evidence) error {
	if evidence == nil || len(evidence.Data) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "evidence image is required")
	}
	if int64(len(evidence.Data)) > s.limits.MaxBytes {
		return appErrors.Clone(appErrors.ErrValidation, "evidence file is too large")
	}
	detected := http.DetectContentType(evidence.Data)
	if idx := strings.Index(detected, ";"); idx >= 0 {
		detected = detected[:idx]
	}
	if len(s.limits.AllowedMIMEs) > 0 && !containsFold(s.limits.AllowedMIMEs, detected) {
		return appErrors.Clone(appErrors.ErrValidation, "evidence must be an image ("+strings.Join(s.limits.AllowedMIMEs, ", ")+")")
	}
	evidence.ContentType = detected
	return nil
}

// ListMine returns the calling student's complaints with resolvable links.
func (s *ComplaintService) ListMine(ctx context.Context, principal models.Principal) ([]models.ComplaintView, error) {
	student, err := s.students.StudentFor(ctx, principal)
	if err != nil {
		return nil, err
	}
	complaints, err := s.repo.ListByUSN(ctx, student.USN)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list complaints")
	}
	s.links.decorateComplaints(complaints)
	return complaints, nil
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
