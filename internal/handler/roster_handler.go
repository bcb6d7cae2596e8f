package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/service"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/response"
)

type rosterService interface {
	Preview(ctx context.Context, principal models.Principal, link string) (*service.RosterPreview, error)
	ApproveActivity(ctx context.Context, principal models.Principal, activityID string) (*models.RosterApprovalResult, error)
	DisapproveActivity(ctx context.Context, principal models.Principal, activityID string) error
	ListPendingRosters(ctx context.Context, principal models.Principal, page, pageSize int) ([]models.Activity, *models.Pagination, error)
}

// PreviewRosterRequest carries the roster link to inspect.
type PreviewRosterRequest struct {
	RosterLink string `json:"roster_link" binding:"required"`
}

// RosterHandler exposes Superadmin roster review.
type RosterHandler struct {
	rosters rosterService
}

// NewRosterHandler constructs RosterHandler.
func NewRosterHandler(rosters rosterService) *RosterHandler {
	return &RosterHandler{rosters: rosters}
}

// Pending godoc
// @Summary List activities with a roster awaiting approval
// @Tags Rosters
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activities/pending-rosters [get]
func (h *RosterHandler) Pending(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	activities, pagination, err := h.rosters.ListPendingRosters(c.Request.Context(), principal, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, pagination)
}

// Approve godoc
// @Summary Approve an activity roster and award points to every listed student
// @Tags Rosters
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 207 {object} response.Envelope "Some totals could not be updated"
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /activities/{id}/approve [post]
func (h *RosterHandler) Approve(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	result, err := h.rosters.ApproveActivity(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		if result != nil {
			response.Partial(c, result, err)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Disapprove godoc
// @Summary Reject an activity roster
// @Tags Rosters
// @Param id path string true "Activity ID"
// @Success 204
// @Security BearerAuth
// @Router /activities/{id}/disapprove [post]
func (h *RosterHandler) Disapprove(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	if err := h.rosters.DisapproveActivity(c.Request.Context(), principal, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Preview godoc
// @Summary Parse a roster link and match its usns against students
// @Tags Rosters
// @Accept json
// @Produce json
// @Param payload body PreviewRosterRequest true "Roster link"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /rosters/preview [post]
func (h *RosterHandler) Preview(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req PreviewRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "roster_link is required"))
		return
	}
	preview, err := h.rosters.Preview(c.Request.Context(), principal, req.RosterLink)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}
