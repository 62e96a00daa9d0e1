package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type reportService interface {
	RenderSessionStructure(ctx context.Context, session models.ActiveSession, format dto.ReportFormat) (*service.RenderedReport, error)
}

// ReportHandler exposes reporting endpoints.
type ReportHandler struct {
	reports  reportService
	sessions sessionResolver
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService, sessions sessionResolver) *ReportHandler {
	return &ReportHandler{reports: reports, sessions: sessions}
}

// SessionStructure godoc
// @Summary Download the structure of the active session
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Failure 412 {object} response.Envelope
// @Router /reports/session-structure [get]
func (h *ReportHandler) SessionStructure(c *gin.Context) {
	var query dto.SessionStructureQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	report, err := h.reports.RenderSessionStructure(c.Request.Context(), session, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, report.ContentType, report.Filename, report.Body)
}
