package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-points-api/internal/middleware"
	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/pkg/response"
)

type pointsService interface {
	List(ctx context.Context, principal models.Principal, filter models.StudentFilter) ([]models.StudentPoints, *models.Pagination, error)
	Leaderboard(ctx context.Context, principal models.Principal, limit int) ([]models.StudentPoints, bool, error)
	StudentActivities(ctx context.Context, principal models.Principal, usn string) (*models.StudentPointsDetail, error)
	MyPoints(ctx context.Context, principal models.Principal) (*models.StudentPointsDetail, error)
	Reconcile(ctx context.Context, principal models.Principal, usn string) (*models.ReconcileResult, error)
}

// StudentHandler exposes student point totals.
type StudentHandler struct {
	points pointsService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(points pointsService) *StudentHandler {
	return &StudentHandler{points: points}
}

// List godoc
// @Summary List students with their totals
// @Tags Students
// @Produce json
// @Param search query string false "Search by usn, name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	filter := models.StudentFilter{Search: strings.TrimSpace(c.Query("search")), Page: page, PageSize: size}
	students, pagination, err := h.points.List(c.Request.Context(), principal, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Leaderboard godoc
// @Summary Top students by points
// @Tags Students
// @Produce json
// @Param limit query int false "Number of students"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/leaderboard [get]
func (h *StudentHandler) Leaderboard(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	board, hit, err := h.points.Leaderboard(c.Request.Context(), principal, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, board, nil, middleware.ExtractMeta(c))
}

// Activities godoc
// @Summary A student's total and ledger entries
// @Tags Students
// @Produce json
// @Param usn path string true "Student USN"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{usn}/activities [get]
func (h *StudentHandler) Activities(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	detail, err := h.points.StudentActivities(c.Request.Context(), principal, c.Param("usn"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// MyPoints godoc
// @Summary The calling student's total and ledger entries
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/me/points [get]
func (h *StudentHandler) MyPoints(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	detail, err := h.points.MyPoints(c.Request.Context(), principal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Reconcile godoc
// @Summary Recompute a student's cached total from the ledger
// @Tags Students
// @Produce json
// @Param usn path string true "Student USN"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{usn}/reconcile [post]
func (h *StudentHandler) Reconcile(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	result, err := h.points.Reconcile(c.Request.Context(), principal, c.Param("usn"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
