package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/export"
)

type structureLister interface {
	ListDepartments(ctx context.Context, session models.ActiveSession) ([]models.Department, error)
	ListCourses(ctx context.Context, session models.ActiveSession, departmentID string) ([]models.Course, error)
	ListYearLevels(ctx context.Context, session models.ActiveSession, departmentID, courseID string) ([]models.YearLevel, error)
	ListSections(ctx context.Context, session models.ActiveSession, departmentID, courseID, yearLevelID string) ([]models.Section, error)
}

// Report column headers.
const (
	colDepartment = "Department"
	colCourse     = "Course"
	colCode       = "Code"
	colYearLevel  = "Year Level"
	colSection    = "Section"
)

// RenderedReport is a report ready to be downloaded.
type RenderedReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReportService flattens the session structure into downloadable tables.
type ReportService struct {
	structure structureLister
	renderers map[dto.ReportFormat]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs the report service with CSV and PDF renderers.
func NewReportService(structure structureLister, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		structure: structure,
		renderers: map[dto.ReportFormat]export.Renderer{
			dto.ReportFormatCSV: export.NewCSVExporter(),
			dto.ReportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SessionStructure returns one row per section. Nodes without children still
// get a row so empty departments, courses and year levels are visible.
func (s *ReportService) SessionStructure(ctx context.Context, session models.ActiveSession) (export.Dataset, error) {
	if err := requireSession(session); err != nil {
		return export.Dataset{}, err
	}

	data := export.Dataset{
		Title:   fmt.Sprintf("Session structure %s %s", session.AcademicYearLabel, session.SemesterName),
		Headers: []string{colDepartment, colCourse, colCode, colYearLevel, colSection},
	}
	add := func(dept, course, code, level, section string) {
		data.Rows = append(data.Rows, map[string]string{
			colDepartment: dept,
			colCourse:     course,
			colCode:       code,
			colYearLevel:  level,
			colSection:    section,
		})
	}

	departments, err := s.structure.ListDepartments(ctx, session)
	if err != nil {
		return export.Dataset{}, err
	}
	for _, d := range departments {
		courses, err := s.structure.ListCourses(ctx, session, d.ID)
		if err != nil {
			return export.Dataset{}, err
		}
		if len(courses) == 0 {
			add(d.Name, "", "", "", "")
		}
		for _, c := range courses {
			levels, err := s.structure.ListYearLevels(ctx, session, d.ID, c.ID)
			if err != nil {
				return export.Dataset{}, err
			}
			if len(levels) == 0 {
				add(d.Name, c.Name, c.Code, "", "")
			}
			for _, l := range levels {
				sections, err := s.structure.ListSections(ctx, session, d.ID, c.ID, l.ID)
				if err != nil {
					return export.Dataset{}, err
				}
				if len(sections) == 0 {
					add(d.Name, c.Name, c.Code, l.Name, "")
				}
				for _, sec := range sections {
					add(d.Name, c.Name, c.Code, l.Name, sec.Name)
				}
			}
		}
	}
	return data, nil
}

// RenderSessionStructure builds the structure report in the requested format.
func (s *ReportService) RenderSessionStructure(ctx context.Context, session models.ActiveSession, format dto.ReportFormat) (*RenderedReport, error) {
	if format == "" {
		format = dto.ReportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}

	data, err := s.SessionStructure(ctx, session)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	label := strings.ReplaceAll(session.AcademicYearLabel, " ", "_")
	filename := fmt.Sprintf("session-structure-%s-%s.%s", label, s.now().Format("20060102"), renderer.Extension())
	s.logger.Info("session structure report rendered",
		zap.String("format", string(format)),
		zap.Int("rows", len(data.Rows)),
		zap.String("academic_year_id", session.AcademicYearID),
	)
	return &RenderedReport{Filename: filename, ContentType: renderer.ContentType(), Body: body}, nil
}
