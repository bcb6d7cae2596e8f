package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-points-api/internal/models"
	appErrors "github.com/noah-isme/activity-points-api/pkg/errors"
	"github.com/noah-isme/activity-points-api/pkg/export"
)

type reportStudentRepository interface {
	AllPoints(ctx context.Context) ([]models.StudentPoints, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered report ready to download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the points report.
type ExportService struct {
	students  reportStudentRepository
	renderers map[string]renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(students reportStudentRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	csv := export.NewCSVExporter()
	pdf := export.NewPDFExporter()
	return &ExportService{
		students:  students,
		renderers: map[string]renderer{csv.Extension(): csv, pdf.Extension(): pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// PointsReport renders every student's usn, name and derived total.
func (s *ExportService) PointsReport(ctx context.Context, principal models.Principal, format string) (*ExportFile, error) {
	if !principal.Is(models.RoleCounsellor, models.RoleSuperadmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to export points")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	students, err := s.students.AllPoints(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load points")
	}

	generated := s.now().UTC()
	dataset := export.Dataset{
		Title: "Student Activity Points",
		Columns: []export.Column{
			{Key: "usn", Title: "USN", Weight: 1.2},
			{Key: "name", Title: "Name", Weight: 2.5},
			{Key: "activities", Title: "Activities", Weight: 0.8, Align: "R"},
			{Key: "total_points", Title: "Total Points", Weight: 1, Align: "R"},
		},
		Rows:        make([]map[string]string, 0, len(students)),
		GeneratedAt: generated,
	}
	for _, st := range students {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"usn":          st.USN,
			"name":         st.Name,
			"activities":   strconv.Itoa(st.Activities),
			"total_points": strconv.FormatInt(st.TotalPoints, 10),
		})
	}

	data, err := r.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.logger.Info("points report rendered", zap.String("format", format), zap.Int("rows", len(students)))
	return &ExportFile{
		Filename:    fmt.Sprintf("activity-points-%s.%s", generated.Format("20060102"), r.Extension()),
		ContentType: r.ContentType(),
		Data:        data,
	}, nil
}
