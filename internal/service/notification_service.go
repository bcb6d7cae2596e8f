package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/pkg/jobs"
	"github.com/noah-isme/activity-points-api/pkg/mailer"
)

// DecisionEmailJob is the job type carrying a DecisionNotice.
const DecisionEmailJob = "decision_email"

// DecisionNotice describes a complaint decision to tell the student about.
type DecisionNotice struct {
	ComplaintID    string
	USN            string
	ComplaintTitle string
	ActivityTitle  string
	Status         models.ComplaintStatus
	Points         int
	ExplorerURL    string
}

type notificationStudentRepository interface {
	FindByUSN(ctx context.Context, usn string) (*models.Student, error)
}

// NotificationService queues and sends decision emails.
type NotificationService struct {
	queue    jobEnqueuer
	students notificationStudentRepository
	sender   mailer.Sender
	metrics  *MetricsService
	appName  string
	logger   *zap.Logger
}

// NewNotificationService constructs the notifier. queue is set later with
// Attach because the queue needs Handle to exist first.
func NewNotificationService(students notificationStudentRepository, sender mailer.Sender, appName string, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if appName == "" {
		appName = "Activity Points"
	}
	return &NotificationService{students: students, sender: sender, metrics: metrics, appName: appName, logger: logger}
}

// Attach wires the queue that Notify enqueues onto.
func (s *NotificationService) Attach(queue jobEnqueuer) {
	s.queue = queue
}

// Notify enqueues a decision email. It never blocks or fails the caller.
func (s *NotificationService) Notify(_ context.Context, notice DecisionNotice) {
	if s == nil || s.queue == nil {
		return
	}
	_, err := s.queue.Enqueue(jobs.Job{Type: DecisionEmailJob, Payload: notice})
	s.metrics.RecordJobEnqueue(DecisionEmailJob, err)
	if err != nil {
		s.logger.Warn("decision email not queued", zap.String("complaint_id", notice.ComplaintID), zap.Error(err))
	}
}

// Handle sends one decision email.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	notice, ok := job.Payload.(DecisionNotice)
	if !ok {
		s.logger.Warn("decision email job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	student, err := s.students.FindByUSN(ctx, notice.USN)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("no student for decision email", zap.String("usn", notice.USN))
			return nil
		}
		return fmt.Errorf("load student %s: %w", notice.USN, err)
	}
	if student.Email == "" {
		return nil
	}
	return s.sender.Send(ctx, s.compose(notice, student))
}

func (s *NotificationService) compose(notice DecisionNotice, student *models.Student) mailer.Message {
	var subject string
	var body strings.Builder
	fmt.Fprintf(&body, "Hi %s,\n\n", student.Name)
	switch notice.Status {
	case models.ComplaintApproved:
		subject = fmt.Sprintf("Complaint approved: +%d points", notice.Points)
		fmt.Fprintf(&body, "Your complaint %q for %s was approved and %d points were added to your total.\n", notice.ComplaintTitle, notice.ActivityTitle, notice.Points)
		if notice.ExplorerURL != "" {
			fmt.Fprintf(&body, "The approval is recorded on-chain: %s\n", notice.ExplorerURL)
		}
	default:
		subject = "Complaint rejected"
		fmt.Fprintf(&body, "Your complaint %q for %s was rejected.\n", notice.ComplaintTitle, notice.ActivityTitle)
	}
	fmt.Fprintf(&body, "\n%s\n", s.appName)
	return mailer.Message{ToName: student.Name, ToEmail: student.Email, Subject: subject, Text: body.String()}
}
