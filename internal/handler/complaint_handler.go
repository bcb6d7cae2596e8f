package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/service"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/response"
	"github.com/noah-isme/activity-points-api/pkg/storage"
)

type complaintService interface {
	Submit(ctx context.Context, principal models.Principal, req service.SubmitComplaintRequest, evidence *storage.Evidence) (*models.ComplaintView, error)
	ListMine(ctx context.Context, principal models.Principal) ([]models.ComplaintView, error)
}

type verificationService interface {
	Approve(ctx context.Context, principal models.Principal, complaintID string, points int) (*models.Complaint, error)
	Reject(ctx context.Context, principal models.Principal, complaintID string) (*models.Complaint, error)
}

// ComplaintHandler exposes complaint intake and verification.
type ComplaintHandler struct {
	complaints   complaintService
	verification verificationService
	maxEvidence  int64
}

// NewComplaintHandler constructs ComplaintHandler. maxEvidence caps how much
// of an upload is read before the service rejects it as too large.
func NewComplaintHandler(complaints complaintService, verification verificationService, maxEvidence int64) *ComplaintHandler {
	if maxEvidence <= 0 {
		maxEvidence = 5 << 20
	}
	return &ComplaintHandler{complaints: complaints, verification: verification, maxEvidence: maxEvidence}
}

// Submit godoc
// @Summary Submit a complaint with evidence
// @Tags Complaints
// @Accept multipart/form-data
// @Produce json
// @Param activity_id formData string true "Activity ID"
// @Param title formData string true "Title"
// @Param description formData string true "Description"
// @Param evidence formData file true "Evidence image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints [post]
func (h *ComplaintHandler) Submit(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req service.SubmitComplaintRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form"))
		return
	}
	evidence, err := h.readEvidence(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.complaints.Submit(c.Request.Context(), principal, req, evidence)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

func (h *ComplaintHandler) readEvidence(c *gin.Context) (*storage.Evidence, error) {
	header, err := c.FormFile("evidence")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evidence upload")
	}
	file, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evidence upload")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxEvidence+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evidence upload")
	}
	return &storage.Evidence{Filename: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}, nil
}

// Mine godoc
// @Summary List the caller's complaints
// @Tags Complaints
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/mine [get]
func (h *ComplaintHandler) Mine(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	complaints, err := h.complaints.ListMine(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaints, nil)
}

// Approve godoc
// @Summary Approve a pending complaint and award points
// @Tags Complaints
// @Accept json
// @Produce json
// @Param id path string true "Complaint ID"
// @Param payload body service.ApproveComplaintRequest true "Points to award"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{id}/approve [post]
func (h *ComplaintHandler) Approve(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req service.ApproveComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	complaint, err := h.verification.Approve(c.Request.Context(), principal, c.Param("id"), req.Points)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaint, nil)
}

// Reject godoc
// @Summary Reject a pending complaint
// @Tags Complaints
// @Produce json
// @Param id path string true "Complaint ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /complaints/{id}/reject [post]
func (h *ComplaintHandler) Reject(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	complaint, err := h.verification.Reject(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaint, nil)
}
