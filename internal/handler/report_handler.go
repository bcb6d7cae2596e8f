package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-points-api/internal/models"
	"github.com/noah-isme/activity-points-api/internal/service"
	"github.com/noah-isme/activity-points-api/pkg/response"
)

type reportService interface {
	PointsReport(ctx context.Context, principal models.Principal, format string) (*service.ExportFile, error)
}

// ReportHandler serves downloadable reports.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Points godoc
// @Summary Download every student's points
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /reports/points [get]
func (h *ReportHandler) Points(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	file, err := h.reports.PointsReport(c.Request.Context(), principal, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
