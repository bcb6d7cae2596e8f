package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/service"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/storage"
)

type complaintServiceMock struct {
	req      service.SubmitComplaintRequest
	evidence *storage.Evidence
}

func (m *complaintServiceMock) Submit(_ context.Context, _ models.Principal, req service.SubmitComplaintRequest, evidence *storage.Evidence) (*models.ComplaintView, error) {
	m.req, m.evidence = req, evidence
	if evidence == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence image is required")
	}
	return &models.ComplaintView{Complaint: models.Complaint{ID: "c-1", Status: models.ComplaintPending}}, nil
}

func (m *complaintServiceMock) ListMine(context.Context, models.Principal) ([]models.ComplaintView, error) {
	return []models.ComplaintView{}, nil
}

type verificationServiceMock struct {
	points int
	err    error
}

func (m *verificationServiceMock) Approve(_ context.Context, _ models.Principal, id string, points int) (*models.Complaint, error) {
	m.points = points
	if m.err != nil {
		return nil, m.err
	}
	return &models.Complaint{ID: id, Status: models.ComplaintApproved, Points: &points}, nil
}

func (m *verificationServiceMock) Reject(_ context.Context, _ models.Principal, id string) (*models.Complaint, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Complaint{ID: id, Status: models.ComplaintRejected}, nil
}

func multipartComplaint(t *testing.T, withFile bool) ([]byte, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	require.NoError(t, w.WriteField("activity_id", "act-1"))
	require.NoError(t, w.WriteField("title", "Missing points"))
	require.NoError(t, w.WriteField("description", "I attended"))
	if withFile {
		part, err := w.CreateFormFile("evidence", "proof.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\n0123456789"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func TestComplaintHandlerSubmit(t *testing.T) {
	mock := &complaintServiceMock{}
	router := routerAs(&studentPrincipal, http.MethodPost, "/complaints", NewComplaintHandler(mock, nil, 1024).Submit)

	body, contentType := multipartComplaint(t, true)
	rec := do(router, http.MethodPost, "/complaints", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "act-1", mock.req.ActivityID)
	assert.Equal(t, "Missing points", mock.req.Title)
	require.NotNil(t, mock.evidence)
	assert.Equal(t, "proof.png", mock.evidence.Filename)
	assert.Len(t, mock.evidence.Data, 18)
}

func TestComplaintHandlerSubmitWithoutEvidence(t *testing.T) {
	mock := &complaintServiceMock{}
	router := routerAs(&studentPrincipal, http.MethodPost, "/complaints", NewComplaintHandler(mock, nil, 1024).Submit)

	body, contentType := multipartComplaint(t, false)
	rec := do(router, http.MethodPost, "/complaints", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, mock.evidence)
}

func TestComplaintHandlerSubmitCapsRead(t *testing.T) {
	mock := &complaintServiceMock{}
	router := routerAs(&studentPrincipal, http.MethodPost, "/complaints", NewComplaintHandler(mock, nil, 4).Submit)

	body, contentType := multipartComplaint(t, true)
	do(router, http.MethodPost, "/complaints", body, contentType)
	require.NotNil(t, mock.evidence)
	assert.Len(t, mock.evidence.Data, 5, "one byte past the cap so the service sees it as too large")
}

func TestComplaintHandlerApprove(t *testing.T) {
	mock := &verificationServiceMock{}
	router := routerAs(&adminPrincipal, http.MethodPost, "/complaints/:id/approve", NewComplaintHandler(nil, mock, 0).Approve)

	rec := do(router, http.MethodPost, "/complaints/c-1/approve", []byte(`{"points":15}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 15, mock.points)

	mock.err = appErrors.Clone(appErrors.ErrPreconditionFailed, "complaint is not pending")
	rec = do(router, http.MethodPost, "/complaints/c-1/approve", []byte(`{"points":15}`), "application/json")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = do(router, http.MethodPost, "/complaints/c-1/approve", []byte(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplaintHandlerReject(t *testing.T) {
	mock := &verificationServiceMock{}
	router := routerAs(&adminPrincipal, http.MethodPost, "/complaints/:id/reject", NewComplaintHandler(nil, mock, 0).Reject)

	rec := do(router, http.MethodPost, "/complaints/c-9/reject", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"rejected"`)
}
