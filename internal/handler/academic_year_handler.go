package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type academicYearService interface {
	ListAcademicYears(ctx context.Context) ([]models.AcademicYear, error)
	GetAcademicYear(ctx context.Context, id string) (*models.AcademicYear, error)
	CreateAcademicYear(ctx context.Context, req dto.CreateAcademicYearRequest) (*models.AcademicYear, error)
	UpdateAcademicYear(ctx context.Context, id string, req dto.UpdateAcademicYearRequest) (*models.AcademicYear, error)
}

type yearActivationService interface {
	ActivateAcademicYear(ctx context.Context, req dto.ActivateAcademicYearRequest, actor *models.JWTClaims) (*dto.ActivationResult, error)
	DeleteAcademicYear(ctx context.Context, yearID string, actor *models.JWTClaims) error
}

// AcademicYearHandler exposes academic year endpoints.
type AcademicYearHandler struct {
	calendar   academicYearService
	activation yearActivationService
}

// NewAcademicYearHandler constructs an academic year handler.
func NewAcademicYearHandler(calendar academicYearService, activation yearActivationService) *AcademicYearHandler {
	return &AcademicYearHandler{calendar: calendar, activation: activation}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// List godoc
// @Summary List academic years
// @Description Active first, then Upcoming, then Archived
// @Tags AcademicYears
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *AcademicYearHandler) List(c *gin.Context) {
	years, err := h.calendar.ListAcademicYears(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, years)
}

// Get godoc
// @Summary Get academic year
// @Tags AcademicYears
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id} [get]
func (h *AcademicYearHandler) Get(c *gin.Context) {
	year, err := h.calendar.GetAcademicYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// Create godoc
// @Summary Create academic year
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Param payload body dto.CreateAcademicYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Router /academic-years [post]
func (h *AcademicYearHandler) Create(c *gin.Context) {
	var req dto.CreateAcademicYearRequest
	if !bindJSON(c, &req) {
		return
	}
	year, err := h.calendar.CreateAcademicYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// Update godoc
// @Summary Relabel academic year
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body dto.UpdateAcademicYearRequest true "Academic year payload"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id} [put]
func (h *AcademicYearHandler) Update(c *gin.Context) {
	var req dto.UpdateAcademicYearRequest
	if !bindJSON(c, &req) {
		return
	}
	year, err := h.calendar.UpdateAcademicYear(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, year)
}

// Activate godoc
// @Summary Activate academic year
// @Description Archives every other Active year in the same transaction
// @Tags AcademicYears
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body dto.ActivateAcademicYearRequest false "Optional fencing"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id}/activate [post]
func (h *AcademicYearHandler) Activate(c *gin.Context) {
	var req dto.ActivateAcademicYearRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	req.YearID = c.Param("id")
	result, err := h.activation.ActivateAcademicYear(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Delete godoc
// @Summary Delete academic year
// @Description Removes the year with its semesters and structure; the Active year is refused
// @Tags AcademicYears
// @Param id path string true "Academic year ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id} [delete]
func (h *AcademicYearHandler) Delete(c *gin.Context) {
	if err := h.activation.DeleteAcademicYear(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
