package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/pkg/classifier"
	"github.com/noah-isme/activity-points-api/pkg/jobs"
)

// ClassifyActivityJob is the job type carrying an activity id to classify.
const ClassifyActivityJob = "classify_activity"

type classificationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	SaveClassification(ctx context.Context, id string, cls models.ActivityClassification) error
}

type activityClassifier interface {
	Classify(ctx context.Context, title, description string) (classifier.Result, error)
}

// ClassificationService annotates activities with an SDG category in the background.
type ClassificationService struct {
	repo       classificationRepository
	classifier activityClassifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewClassificationService constructs the job handler.
func NewClassificationService(repo classificationRepository, c activityClassifier, logger *zap.Logger) *ClassificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassificationService{repo: repo, classifier: c, logger: logger, now: time.Now}
}

// Handle processes one classification job. Returning an error asks the queue
// to retry; permanent conditions are logged and swallowed.
func (s *ClassificationService) Handle(ctx context.Context, job jobs.Job) error {
	activityID, ok := job.Payload.(string)
	if !ok || activityID == "" {
		s.logger.Warn("classification job without activity id", zap.String("job_id", job.ID))
		return nil
	}

	activity, err := s.repo.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("classification skipped, activity gone", zap.String("activity_id", activityID))
			return nil
		}
		return fmt.Errorf("load activity %s: %w", activityID, err)
	}

	result, err := s.classifier.Classify(ctx, activity.Title, activity.Description)
	if err != nil {
		if errors.Is(err, classifier.ErrNotConfigured) {
			s.logger.Debug("classifier not configured", zap.String("activity_id", activityID))
			return nil
		}
		return fmt.Errorf("classify activity %s: %w", activityID, err)
	}

	cls := models.ActivityClassification{IsSDG: result.IsSDG, SDGCategory: result.Category, ClassifiedAt: s.now().UTC()}
	if err := s.repo.SaveClassification(ctx, activityID, cls); err != nil {
		return err
	}
	s.logger.Info("activity classified", zap.String("activity_id", activityID), zap.Bool("is_sdg", result.IsSDG))
	return nil
}
