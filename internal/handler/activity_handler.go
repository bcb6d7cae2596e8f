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

type activityService interface {
	Create(ctx context.Context, principal models.Principal, req service.CreateActivityRequest) (*models.Activity, error)
	ListMine(ctx context.Context, principal models.Principal, page, pageSize int) ([]models.Activity, *models.Pagination, error)
	ListAll(ctx context.Context, page, pageSize int) ([]models.Activity, *models.Pagination, error)
	Upcoming(ctx context.Context, page, pageSize int) ([]models.Activity, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Activity, error)
	ListComplaints(ctx context.Context, principal models.Principal, activityID string) ([]models.ComplaintView, error)
}

// ActivityHandler exposes the activity registry.
type ActivityHandler struct {
	activities activityService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activities activityService) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// List godoc
// @Summary List activities
// @Tags Activities
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	activities, pagination, err := h.activities.ListAll(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, pagination)
}

// Upcoming godoc
// @Summary List activities happening today or later
// @Tags Activities
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activities/upcoming [get]
func (h *ActivityHandler) Upcoming(c *gin.Context) {
	page, size := pageParams(c)
	activities, pagination, err := h.activities.Upcoming(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, pagination)
}

// Mine godoc
// @Summary List activities organized by the caller
// @Tags Activities
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activities/mine [get]
func (h *ActivityHandler) Mine(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	activities, pagination, err := h.activities.ListMine(c.Request.Context(), principal, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, pagination)
}

// Create godoc
// @Summary Create an activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body service.CreateActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /activities [post]
func (h *ActivityHandler) Create(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req service.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	activity, err := h.activities.Create(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// Get godoc
// @Summary Get activity detail
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	activity, err := h.activities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Complaints godoc
// @Summary List complaints filed against an activity
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /activities/{id}/complaints [get]
func (h *ActivityHandler) Complaints(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	complaints, err := h.activities.ListComplaints(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, complaints, nil)
}
