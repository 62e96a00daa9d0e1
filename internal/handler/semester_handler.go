package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type semesterService interface {
	ListSemesters(ctx context.Context, yearID string) ([]models.Semester, error)
	GetSemester(ctx context.Context, yearID, semesterID string) (*models.Semester, error)
	CreateSemester(ctx context.Context, yearID string, req dto.CreateSemesterRequest) (*models.Semester, error)
	UpdateSemester(ctx context.Context, yearID, semesterID string, req dto.UpdateSemesterRequest) (*models.Semester, error)
}

type semesterActivationService interface {
	ActivateSemester(ctx context.Context, yearID string, req dto.ActivateSemesterRequest, actor *models.JWTClaims) (*dto.ActivationResult, error)
	DeleteSemester(ctx context.Context, yearID, semesterID string, actor *models.JWTClaims) error
}

// SemesterHandler exposes semester endpoints nested under an academic year.
type SemesterHandler struct {
	calendar   semesterService
	activation semesterActivationService
}

// NewSemesterHandler constructs a semester handler.
func NewSemesterHandler(calendar semesterService, activation semesterActivationService) *SemesterHandler {
	return &SemesterHandler{calendar: calendar, activation: activation}
}

// List godoc
// @Summary List semesters of an academic year
// @Tags Semesters
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/semesters [get]
func (h *SemesterHandler) List(c *gin.Context) {
	semesters, err := h.calendar.ListSemesters(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, semesters)
}

// Get godoc
// @Summary Get semester
// @Tags Semesters
// @Produce json
// @Param id path string true "Academic year ID"
// @Param semesterId path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/semesters/{semesterId} [get]
func (h *SemesterHandler) Get(c *gin.Context) {
	semester, err := h.calendar.GetSemester(c.Request.Context(), c.Param("id"), c.Param("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, semester)
}

// Create godoc
// @Summary Create semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body dto.CreateSemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Router /academic-years/{id}/semesters [post]
func (h *SemesterHandler) Create(c *gin.Context) {
	var req dto.CreateSemesterRequest
	if !bindJSON(c, &req) {
		return
	}
	semester, err := h.calendar.CreateSemester(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, semester)
}

// Update godoc
// @Summary Update semester name or dates
// @Tags Semesters
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param semesterId path string true "Semester ID"
// @Param payload body dto.UpdateSemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Router /academic-years/{id}/semesters/{semesterId} [put]
func (h *SemesterHandler) Update(c *gin.Context) {
	var req dto.UpdateSemesterRequest
	if !bindJSON(c, &req) {
		return
	}
	semester, err := h.calendar.UpdateSemester(c.Request.Context(), c.Param("id"), c.Param("semesterId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, semester)
}

// Activate godoc
// @Summary Activate semester
// @Description Archives every other Active semester of the same year in one transaction
// @Tags Semesters
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param semesterId path string true "Semester ID"
// @Param payload body dto.ActivateSemesterRequest false "Optional fencing"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id}/semesters/{semesterId}/activate [post]
func (h *SemesterHandler) Activate(c *gin.Context) {
	var req dto.ActivateSemesterRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	req.SemesterID = c.Param("semesterId")
	result, err := h.activation.ActivateSemester(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Delete godoc
// @Summary Delete semester
// @Tags Semesters
// @Param id path string true "Academic year ID"
// @Param semesterId path string true "Semester ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /academic-years/{id}/semesters/{semesterId} [delete]
func (h *SemesterHandler) Delete(c *gin.Context) {
	if err := h.activation.DeleteSemester(c.Request.Context(), c.Param("id"), c.Param("semesterId"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
