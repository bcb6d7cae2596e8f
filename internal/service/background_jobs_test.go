package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/pkg/classifier"
	"github.com/noah-isme/activity-points-api/pkg/jobs"
	"github.com/noah-isme/activity-points-api/pkg/mailer"
)

type classificationStore struct {
	activities map[string]models.Activity
	saved      map[string]models.ActivityClassification
}

func (s *classificationStore) FindByID(_ context.Context, id string) (*models.Activity, error) {
	a, ok := s.activities[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (s *classificationStore) SaveClassification(_ context.Context, id string, cls models.ActivityClassification) error {
	s.saved[id] = cls
	return nil
}

type stubClassifier struct {
	result classifier.Result
	err    error
	seen   []string
}

func (c *stubClassifier) Classify(_ context.Context, title, _ string) (classifier.Result, error) {
	c.seen = append(c.seen, title)
	return c.result, c.err
}

func newClassificationFixture(c *stubClassifier) (*ClassificationService, *classificationStore) {
	store := &classificationStore{
		activities: map[string]models.Activity{"act-1": {ID: "act-1", Title: "Beach Cleanup", Description: "Coastal drive"}},
		saved:      map[string]models.ActivityClassification{},
	}
	svc := NewClassificationService(store, c, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestClassificationSavesResult(t *testing.T) {
	category := "SDG 14: Life Below Water"
	svc, store := newClassificationFixture(&stubClassifier{result: classifier.Result{IsSDG: true, Category: &category}})

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Type: ClassifyActivityJob, Payload: "act-1"}))
	saved := store.saved["act-1"]
	assert.True(t, saved.IsSDG)
	assert.Equal(t, category, *saved.SDGCategory)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), saved.ClassifiedAt)
}

func TestClassificationSkipsPermanentFailures(t *testing.T) {
	c := &stubClassifier{err: classifier.ErrNotConfigured}
	svc, store := newClassificationFixture(c)

	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: "act-1"}))
	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: "ghost"}))
	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: 42}))
	assert.Empty(t, store.saved)
	assert.Equal(t, []string{"Beach Cleanup"}, c.seen)
}

func TestClassificationRetriesTransientFailures(t *testing.T) {
	svc, store := newClassificationFixture(&stubClassifier{err: fmt.Errorf("classifier returned status 503")})

	err := svc.Handle(context.Background(), jobs.Job{Payload: "act-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "act-1")
	assert.Empty(t, store.saved)
}

type studentDirectory map[string]models.Student

func (d studentDirectory) FindByUSN(_ context.Context, usn string) (*models.Student, error) {
	st, ok := d[usn]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

type outbox struct {
	sent []mailer.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func newNotifier(box *outbox) *NotificationService {
	students := studentDirectory{
		"CS001": {USN: "CS001", Name: "Asha", Email: "asha@example.edu"},
		"CS002": {USN: "CS002", Name: "Ravi"},
	}
	return NewNotificationService(students, box, "", nil, zap.NewNop())
}

func TestNotifyEnqueuesDecision(t *testing.T) {
	svc := newNotifier(&outbox{})
	queue := &recordingQueue{}

	svc.Notify(context.Background(), DecisionNotice{ComplaintID: "c-1"})
	assert.Empty(t, queue.jobs, "nothing is queued before Attach")

	svc.Attach(queue)
	svc.Notify(context.Background(), DecisionNotice{ComplaintID: "c-1", USN: "CS001"})
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, DecisionEmailJob, queue.jobs[0].Type)
	assert.Equal(t, "c-1", queue.jobs[0].Payload.(DecisionNotice).ComplaintID)

	var nilNotifier *NotificationService
	assert.NotPanics(t, func() { nilNotifier.Notify(context.Background(), DecisionNotice{}) })
}

func TestHandleSendsApprovalEmail(t *testing.T) {
	box := &outbox{}
	svc := newNotifier(box)

	err := svc.Handle(context.Background(), jobs.Job{Payload: DecisionNotice{
		ComplaintID:    "c-1",
		USN:            "CS001",
		ComplaintTitle: "Missing points",
		ActivityTitle:  "Beach Cleanup",
		Status:         models.ComplaintApproved,
		Points:         15,
		ExplorerURL:    "https://sepolia.etherscan.io/tx/0xabc",
	}})
	require.NoError(t, err)
	require.Len(t, box.sent, 1)
	msg := box.sent[0]
	assert.Equal(t, "asha@example.edu", msg.ToEmail)
	assert.Equal(t, "Complaint approved: +15 points", msg.Subject)
	assert.Contains(t, msg.Text, "Beach Cleanup")
	assert.Contains(t, msg.Text, "https://sepolia.etherscan.io/tx/0xabc")
}

func TestHandleRejectionAndSkips(t *testing.T) {
	box := &outbox{}
	svc := newNotifier(box)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: DecisionNotice{USN: "CS001", Status: models.ComplaintRejected}}))
	require.Len(t, box.sent, 1)
	assert.Equal(t, "Complaint rejected", box.sent[0].Subject)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: DecisionNotice{USN: "CS002"}}), "no email on file")
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: DecisionNotice{USN: "CS404"}}))
	require.NoError(t, svc.Handle(context.Background(), jobs.Job{Payload: "garbage"}))
	assert.Len(t, box.sent, 1)
}

func TestHandleReturnsSendErrorsForRetry(t *testing.T) {
	svc := newNotifier(&outbox{err: errors.New("sendgrid 500")})
	err := svc.Handle(context.Background(), jobs.Job{Payload: DecisionNotice{USN: "CS001", Status: models.ComplaintApproved}})
	assert.EqualError(t, err, "sendgrid 500")
}
