package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type statusRepository interface {
	ActivateAcademicYear(ctx context.Context, yearID string, expected *string) (repository.ActivationOutcome, error)
	ActivateSemester(ctx context.Context, yearID, semesterID string, expected *string) (repository.ActivationOutcome, error)
	DeleteAcademicYear(ctx context.Context, yearID string) error
	DeleteSemester(ctx context.Context, yearID, semesterID string) error
}

// SessionActivationService is the only writer of the status field. Every
// switch runs as one store transaction, so either all documents change or
// none do. Failed commits are reported and never retried here.
type SessionActivationService struct {
	repo        statusRepository
	validator   *validator.Validate
	metrics     *MetricsService
	invalidator *SessionInvalidator
	logger      *zap.Logger
}

// NewSessionActivationService creates a new activation service instance.
func NewSessionActivationService(repo statusRepository, validate *validator.Validate, metrics *MetricsService, invalidator *SessionInvalidator, logger *zap.Logger) *SessionActivationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionActivationService{repo: repo, validator: validate, metrics: metrics, invalidator: invalidator, logger: logger}
}

// ActivateAcademicYear makes req.YearID the only Active academic year.
// Activating the year that is already the only Active one is a no-op.
func (s *SessionActivationService) ActivateAcademicYear(ctx context.Context, req dto.ActivateAcademicYearRequest, actor *models.JWTClaims) (*dto.ActivationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid activation payload")
	}

	start := time.Now()
	outcome, err := s.repo.ActivateAcademicYear(ctx, req.YearID, req.ExpectedActiveYearID)
	s.metrics.ObserveStoreOperation("activate_academic_year", time.Since(start))
	if err != nil {
		s.recordFailure(ScopeAcademicYear, err)
		s.logger.Warn("academic year activation failed",
			zap.String("academic_year_id", req.YearID),
			zap.String("actor_id", actorID(actor)),
			zap.Error(err),
		)
		return nil, storeError(err, "academic year not found", "activate academic year")
	}

	return s.finish(ctx, ScopeAcademicYear, req.YearID, outcome, actor), nil
}

// ActivateSemester makes req.SemesterID the only Active semester of yearID.
// The year's own status is not checked or changed.
func (s *SessionActivationService) ActivateSemester(ctx context.Context, yearID string, req dto.ActivateSemesterRequest, actor *models.JWTClaims) (*dto.ActivationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid activation payload")
	}
	if yearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academic year id is required")
	}

	start := time.Now()
	outcome, err := s.repo.ActivateSemester(ctx, yearID, req.SemesterID, req.ExpectedActiveSemesterID)
	s.metrics.ObserveStoreOperation("activate_semester", time.Since(start))
	if err != nil {
		s.recordFailure(ScopeSemester, err)
		s.logger.Warn("semester activation failed",
			zap.String("academic_year_id", yearID),
			zap.String("semester_id", req.SemesterID),
			zap.String("actor_id", actorID(actor)),
			zap.Error(err),
		)
		return nil, storeError(err, "semester not found", "activate semester")
	}

	return s.finish(ctx, ScopeSemester, req.SemesterID, outcome, actor), nil
}

func (s *SessionActivationService) finish(ctx context.Context, scope, id string, outcome repository.ActivationOutcome, actor *models.JWTClaims) *dto.ActivationResult {
	result := &dto.ActivationResult{ActivatedID: id, ArchivedIDs: outcome.ArchivedIDs, Changed: outcome.Changed}
	if result.ArchivedIDs == nil {
		result.ArchivedIDs = []string{}
	}
	if !outcome.Changed {
		s.metrics.RecordActivation(scope, OutcomeNoop)
		return result
	}

	s.metrics.RecordActivation(scope, OutcomeActivated)
	s.invalidator.Invalidate(ctx, scope+" activated")
	s.logger.Info("session activated",
		zap.String("scope", scope),
		zap.String("id", id),
		zap.Strings("archived_ids", outcome.ArchivedIDs),
		zap.String("actor_id", actorID(actor)),
	)
	if len(outcome.ArchivedIDs) > 1 {
		s.logger.Warn("activation archived several active documents", zap.String("scope", scope), zap.Strings("archived_ids", outcome.ArchivedIDs))
	}
	return result
}

func (s *SessionActivationService) recordFailure(scope string, err error) {
	switch {
	case errors.Is(err, repository.ErrActiveMismatch):
		s.metrics.RecordActivation(scope, OutcomeConflict)
	case errors.Is(err, docstore.ErrNotFound):
		s.metrics.RecordActivation(scope, OutcomeNotFound)
	default:
		s.metrics.RecordActivation(scope, OutcomeFailed)
	}
}

// DeleteAcademicYear removes a year together with its semesters and their
// structure. The Active year is refused before anything is written.
func (s *SessionActivationService) DeleteAcademicYear(ctx context.Context, yearID string, actor *models.JWTClaims) error {
	start := time.Now()
	err := s.repo.DeleteAcademicYear(ctx, yearID)
	s.metrics.ObserveStoreOperation("delete_academic_year", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrActiveProtected) {
			return appErrors.Clone(appErrors.ErrActiveYearProtected, "")
		}
		return storeError(err, "academic year not found", "delete academic year")
	}
	s.logger.Info("academic year deleted", zap.String("academic_year_id", yearID), zap.String("actor_id", actorID(actor)))
	return nil
}

// DeleteSemester removes a non-Active semester and its structure.
func (s *SessionActivationService) DeleteSemester(ctx context.Context, yearID, semesterID string, actor *models.JWTClaims) error {
	start := time.Now()
	err := s.repo.DeleteSemester(ctx, yearID, semesterID)
	s.metrics.ObserveStoreOperation("delete_semester", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrActiveProtected) {
			return appErrors.Clone(appErrors.ErrActiveSemesterProtected, "")
		}
		return storeError(err, "semester not found", "delete semester")
	}
	s.logger.Info("semester deleted",
		zap.String("academic_year_id", yearID),
		zap.String("semester_id", semesterID),
		zap.String("actor_id", actorID(actor)),
	)
	return nil
}

func actorID(actor *models.JWTClaims) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}
