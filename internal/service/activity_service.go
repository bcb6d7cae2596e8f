package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/jobs"
	"github.com/noah-isme/activity-points-api/pkg/roster"
)

const eventDateLayout = "2006-01-02"

type activityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, int, error)
}

type activityComplaintRepository interface {
	ListByActivity(ctx context.Context, activityID string) ([]models.ComplaintView, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) (string, error)
}

// CreateActivityRequest holds payload for creating activities.
type CreateActivityRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"required"`
	Points      int    `json:"points" validate:"required,min=1"`
	EventDate   string `json:"event_date" validate:"required"`
	RosterLink  string `json:"roster_link" validate:"omitempty,url"`
}

// ActivityService manages the activity registry.
type ActivityService struct {
	repo       activityRepository
	complaints activityComplaintRepository
	classify   jobEnqueuer
	links      *Linker
	metrics    *MetricsService
	audit      auditTrail
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewActivityService constructs the activity service. classify may be nil.
func NewActivityService(repo activityRepository, complaints activityComplaintRepository, classify jobEnqueuer, links *Linker, audit auditRepository, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ActivityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{
		repo:       repo,
		complaints: complaints,
		classify:   classify,
		links:      links,
		metrics:    metrics,
		audit:      auditTrail{repo: audit, logger: logger},
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// Create registers a pending activity organized by the calling Admin.
func (s *ActivityService) Create(ctx context.Context, principal models.Principal, req CreateActivityRequest) (*models.Activity, error) {
	if !principal.Is(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can create activities")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.RosterLink = strings.TrimSpace(req.RosterLink)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	eventDate, err := time.Parse(eventDateLayout, req.EventDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "event_date must be YYYY-MM-DD")
	}

	activity := &models.Activity{
		Title:       req.Title,
		Description: req.Description,
		Points:      req.Points,
		EventDate:   eventDate,
		OrganizedBy: principal.PrincipalID,
	}
	if req.RosterLink != "" {
		link := roster.ExportURL(req.RosterLink)
		activity.RosterReference = &link
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create activity")
	}

	s.audit.record(ctx, principal, models.AuditActionActivityCreate, models.AuditResourceActivity, activity.ID, map[string]interface{}{
		"points":     activity.Points,
		"has_roster": activity.HasRoster(),
	})
	s.enqueueClassification(activity.ID)
	return activity, nil
}

func (s *ActivityService) enqueueClassification(activityID string) {
	if s.classify == nil {
		return
	}
	_, err := s.classify.Enqueue(jobs.Job{Type: ClassifyActivityJob, Payload: activityID})
	s.metrics.RecordJobEnqueue(ClassifyActivityJob, err)
	if err != nil {
		s.logger.Warn("classification not queued", zap.String("activity_id", activityID), zap.Error(err))
	}
}

// ListMine returns activities organized by the calling Admin.
func (s *ActivityService) ListMine(ctx context.Context, principal models.Principal, page, pageSize int) ([]models.Activity, *models.Pagination, error) {
	if !principal.Is(models.RoleAdmin) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only admins organize activities")
	}
	return s.list(ctx, models.ActivityFilter{OrganizedBy: principal.PrincipalID, Page: page, PageSize: pageSize})
}

// ListAll returns every activity, e.g. for the complaint form.
func (s *ActivityService) ListAll(ctx context.Context, page, pageSize int) ([]models.Activity, *models.Pagination, error) {
	return s.list(ctx, models.ActivityFilter{Page: page, PageSize: pageSize})
}

// Upcoming returns activities whose event date is today or later.
func (s *ActivityService) Upcoming(ctx context.Context, page, pageSize int) ([]models.Activity, *models.Pagination, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.list(ctx, models.ActivityFilter{FromDate: &today, Page: page, PageSize: pageSize})
}

func (s *ActivityService) list(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, *models.Pagination, error) {
	activities, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	return activities, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a single activity.
func (s *ActivityService) Get(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}

// ListComplaints returns the complaints filed against an activity the Admin organizes.
func (s *ActivityService) ListComplaints(ctx context.Context, principal models.Principal, activityID string) ([]models.ComplaintView, error) {
	if !principal.Is(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins review complaints")
	}
	activity, err := s.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.OrganizedBy != principal.PrincipalID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "activity is organized by another admin")
	}
	complaints, err := s.complaints.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list complaints")
	}
	s.links.decorateComplaints(complaints)
	return complaints, nil
}

func paginate(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
