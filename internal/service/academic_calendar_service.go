package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type academicYearRepository interface {
	List(ctx context.Context) ([]models.AcademicYear, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	UpdateLabel(ctx context.Context, id, label string) error
}

type semesterRepository interface {
	List(ctx context.Context, yearID string) ([]models.Semester, error)
	FindByID(ctx context.Context, yearID, semesterID string) (*models.Semester, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
}

var yearLabelPattern = regexp.MustCompile(`^(?i:S\.?Y\.?\s*-\s*)?(\d{4})\s*-\s*(\d{4})$`)

// NormalizeYearLabel accepts "S.Y - 2024-2025" or "2024-2025" and returns
// "2024-2025". The second year must follow the first.
func NormalizeYearLabel(raw string) (string, error) {
	m := yearLabelPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", fmt.Errorf("label %q must look like S.Y - YYYY-YYYY", raw)
	}
	from, _ := strconv.Atoi(m[1])
	to, _ := strconv.Atoi(m[2])
	if to != from+1 {
		return "", fmt.Errorf("label %q must span consecutive years", raw)
	}
	return fmt.Sprintf("%04d-%04d", from, to), nil
}

// AcademicCalendarService manages academic years and semesters. New documents
// start Upcoming; status changes belong to SessionActivationService.
type AcademicCalendarService struct {
	years         academicYearRepository
	semesters     semesterRepository
	validator     *validator.Validate
	invalidator   *SessionInvalidator
	logger        *zap.Logger
	semesterNames []string
}

// NewAcademicCalendarService creates a calendar service. semesterNames lists
// the accepted semester names.
func NewAcademicCalendarService(years academicYearRepository, semesters semesterRepository, semesterNames []string, validate *validator.Validate, invalidator *SessionInvalidator, logger *zap.Logger) *AcademicCalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicCalendarService{
		years:         years,
		semesters:     semesters,
		validator:     validate,
		invalidator:   invalidator,
		logger:        logger,
		semesterNames: semesterNames,
	}
}

// ListAcademicYears orders Active first, then Upcoming, then Archived; newest label first within a status.
func (s *AcademicCalendarService) ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error) {
	years, err := s.years.List(ctx)
	if err != nil {
		return nil, storeError(err, "academic years not found", "list academic years")
	}
	sort.SliceStable(years, func(i, j int) bool {
		ri, rj := years[i].Status.Rank(), years[j].Status.Rank()
		if ri != rj {
			return ri < rj
		}
		return years[i].Label > years[j].Label
	})
	return years, nil
}

// GetAcademicYear returns a single academic year.
func (s *AcademicCalendarService) GetAcademicYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "academic year not found", "load academic year")
	}
	return year, nil
}

// CreateAcademicYear adds an Upcoming year.
func (s *AcademicCalendarService) CreateAcademicYear(ctx context.Context, req dto.CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid academic year payload")
	}
	label, err := NormalizeYearLabel(req.Label)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	year := &models.AcademicYear{Label: label, Status: models.StatusUpcoming}
	if err := s.years.Create(ctx, year); err != nil {
		return nil, storeError(err, "academic year not found", "create academic year")
	}
	s.logger.Info("academic year created", zap.String("academic_year_id", year.ID), zap.String("label", label))
	return year, nil
}

// UpdateAcademicYear relabels a year.
func (s *AcademicCalendarService) UpdateAcademicYear(ctx context.Context, id string, req dto.UpdateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid academic year payload")
	}
	label, err := NormalizeYearLabel(req.Label)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if err := s.years.UpdateLabel(ctx, id, label); err != nil {
		return nil, storeError(err, "academic year not found", "update academic year")
	}

	year, err := s.years.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "academic year not found", "load academic year")
	}
	if year.Status == models.StatusActive {
		s.invalidator.Invalidate(ctx, "active academic year relabelled")
	}
	return year, nil
}

// ListSemesters returns the semesters of a year, Active first then by start date.
func (s *AcademicCalendarService) ListSemesters(ctx context.Context, yearID string) ([]models.Semester, error) {
	if _, err := s.years.FindByID(ctx, yearID); err != nil {
		return nil, storeError(err, "academic year not found", "load academic year")
	}
	semesters, err := s.semesters.List(ctx, yearID)
	if err != nil {
		return nil, storeError(err, "semesters not found", "list semesters")
	}
	sort.SliceStable(semesters, func(i, j int) bool {
		ai := semesters[i].Status == models.StatusActive
		aj := semesters[j].Status == models.StatusActive
		if ai != aj {
			return ai
		}
		return semesters[i].StartDate.Before(semesters[j].StartDate)
	})
	return semesters, nil
}

// GetSemester returns a single semester of yearID.
func (s *AcademicCalendarService) GetSemester(ctx context.Context, yearID, semesterID string) (*models.Semester, error) {
	semester, err := s.semesters.FindByID(ctx, yearID, semesterID)
	if err != nil {
		return nil, storeError(err, "semester not found", "load semester")
	}
	return semester, nil
}

// CreateSemester adds an Upcoming semester to yearID.
func (s *AcademicCalendarService) CreateSemester(ctx context.Context, yearID string, req dto.CreateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid semester payload")
	}
	name, err := s.canonicalSemester(strings.TrimSpace(req.Name), req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	semester := &models.Semester{
		AcademicYearID: yearID,
		Name:           name,
		Status:         models.StatusUpcoming,
		StartDate:      req.StartDate.UTC(),
		EndDate:        req.EndDate.UTC(),
	}
	if err := s.semesters.Create(ctx, semester); err != nil {
		return nil, storeError(err, "academic year not found", "create semester")
	}
	s.logger.Info("semester created",
		zap.String("academic_year_id", yearID),
		zap.String("semester_id", semester.ID),
		zap.String("name", name),
	)
	return semester, nil
}

// UpdateSemester changes name and dates; the status is kept.
func (s *AcademicCalendarService) UpdateSemester(ctx context.Context, yearID, semesterID string, req dto.UpdateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid semester payload")
	}
	semester, err := s.semesters.FindByID(ctx, yearID, semesterID)
	if err != nil {
		return nil, storeError(err, "semester not found", "load semester")
	}

	if req.Name != nil {
		semester.Name = strings.TrimSpace(*req.Name)
	}
	if req.StartDate != nil {
		semester.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		semester.EndDate = req.EndDate.UTC()
	}
	if semester.Name, err = s.canonicalSemester(semester.Name, semester.StartDate, semester.EndDate); err != nil {
		return nil, err
	}

	semester.AcademicYearID = yearID
	if err := s.semesters.Update(ctx, semester); err != nil {
		return nil, storeError(err, "semester not found", "update semester")
	}
	if semester.Status == models.StatusActive {
		s.invalidator.Invalidate(ctx, "active semester updated")
	}
	return s.GetSemester(ctx, yearID, semesterID)
}

// canonicalSemester validates the name against the configured list and
// returns it with the configured spelling.
func (s *AcademicCalendarService) canonicalSemester(name string, start, end time.Time) (string, error) {
	if len(s.semesterNames) > 0 {
		canonical := ""
		for _, candidate := range s.semesterNames {
			if strings.EqualFold(candidate, name) {
				canonical = candidate
				break
			}
		}
		if canonical == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("semester name must be one of %s", strings.Join(s.semesterNames, ", ")))
		}
		name = canonical
	}
	if !start.Before(end) {
		return "", appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}
	return name, nil
}
