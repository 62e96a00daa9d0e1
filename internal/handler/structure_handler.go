package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type structureService interface {
	CreateDepartment(ctx context.Context, session models.ActiveSession, req dto.CreateDepartmentRequest) (*models.Department, error)
	CreateCourse(ctx context.Context, session models.ActiveSession, departmentID string, req dto.CreateCourseRequest) (*models.Course, error)
	CreateYearLevel(ctx context.Context, session models.ActiveSession, departmentID, courseID string, req dto.CreateYearLevelRequest) (*models.YearLevel, error)
	CreateSection(ctx context.Context, session models.ActiveSession, departmentID, courseID, yearLevelID string, req dto.CreateSectionRequest) (*models.Section, error)
	ListDepartments(ctx context.Context, session models.ActiveSession) ([]models.Department, error)
	ListCourses(ctx context.Context, session models.ActiveSession, departmentID string) ([]models.Course, error)
	ListYearLevels(ctx context.Context, session models.ActiveSession, departmentID, courseID string) ([]models.YearLevel, error)
	ListSections(ctx context.Context, session models.ActiveSession, departmentID, courseID, yearLevelID string) ([]models.Section, error)
	Rename(ctx context.Context, session models.ActiveSession, node service.StructureNode, req dto.RenameRequest) (docstore.Document, error)
	Delete(ctx context.Context, session models.ActiveSession, node service.StructureNode) error
}

// StructureHandler exposes the department, course, year level and section
// tree of the active session. The session is resolved per request and never
// taken from the client.
type StructureHandler struct {
	structure structureService
	sessions  sessionResolver
}

// NewStructureHandler constructs a structure handler.
func NewStructureHandler(structure structureService, sessions sessionResolver) *StructureHandler {
	return &StructureHandler{structure: structure, sessions: sessions}
}

func nodeFromParams(c *gin.Context) service.StructureNode {
	return service.StructureNode{
		DepartmentID: c.Param("departmentId"),
		CourseID:     c.Param("courseId"),
		YearLevelID:  c.Param("yearLevelId"),
		SectionID:    c.Param("sectionId"),
	}
}

// ListDepartments godoc
// @Summary List departments of the active session
// @Tags Structure
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /departments [get]
func (h *StructureHandler) ListDepartments(c *gin.Context) {
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	items, err := h.structure.ListDepartments(c.Request.Context(), session)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// CreateDepartment godoc
// @Summary Create department in the active session
// @Tags Structure
// @Accept json
// @Produce json
// @Param payload body dto.CreateDepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /departments [post]
func (h *StructureHandler) CreateDepartment(c *gin.Context) {
	var req dto.CreateDepartmentRequest
	if !bindJSON(c, &req) {
		return
	}
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	item, err := h.structure.CreateDepartment(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// ListCourses godoc
// @Summary List courses of a department
// @Tags Structure
// @Produce json
// @Param departmentId path string true "Department ID"
// @Success 200 {object} response.Envelope
// @Router /departments/{departmentId}/courses [get]
func (h *StructureHandler) ListCourses(c *gin.Context) {
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	items, err := h.structure.ListCourses(c.Request.Context(), session, c.Param("departmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// CreateCourse godoc
// @Summary Create course
// @Tags Structure
// @Accept json
// @Produce json
// @Param departmentId path string true "Department ID"
// @Param payload body dto.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Router /departments/{departmentId}/courses [post]
func (h *StructureHandler) CreateCourse(c *gin.Context) {
	var req dto.CreateCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	item, err := h.structure.CreateCourse(c.Request.Context(), session, c.Param("departmentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// ListYearLevels godoc
// @Summary List year levels of a course
// @Tags Structure
// @Produce json
// @Param departmentId path string true "Department ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /departments/{departmentId}/courses/{courseId}/year-levels [get]
func (h *StructureHandler) ListYearLevels(c *gin.Context) {
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	items, err := h.structure.ListYearLevels(c.Request.Context(), session, c.Param("departmentId"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// CreateYearLevel godoc
// @Summary Create year level
// @Tags Structure
// @Accept json
// @Produce json
// @Param departmentId path string true "Department ID"
// @Param courseId path string true "Course ID"
// @Param payload body dto.CreateYearLevelRequest true "Year level payload"
// @Success 201 {object} response.Envelope
// @Router /departments/{departmentId}/courses/{courseId}/year-levels [post]
func (h *StructureHandler) CreateYearLevel(c *gin.Context) {
	var req dto.CreateYearLevelRequest
	if !bindJSON(c, &req) {
		return
	}
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	item, err := h.structure.CreateYearLevel(c.Request.Context(), session, c.Param("departmentId"), c.Param("courseId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// ListSections godoc
// @Summary List sections of a year level
// @Tags Structure
// @Produce json
// @Param departmentId path string true "Department ID"
// @Param courseId path string true "Course ID"
// @Param yearLevelId path string true "Year level ID"
// @Success 200 {object} response.Envelope
// @Router /departments/{departmentId}/courses/{courseId}/year-levels/{yearLevelId}/sections [get]
func (h *StructureHandler) ListSections(c *gin.Context) {
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	items, err := h.structure.ListSections(c.Request.Context(), session, c.Param("departmentId"), c.Param("courseId"), c.Param("yearLevelId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// CreateSection godoc
// @Summary Create section
// @Tags Structure
// @Accept json
// @Produce json
// @Param departmentId path string true "Department ID"
// @Param courseId path string true "Course ID"
// @Param yearLevelId path string true "Year level ID"
// @Param payload body dto.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Router /departments/{departmentId}/courses/{courseId}/year-levels/{yearLevelId}/sections [post]
func (h *StructureHandler) CreateSection(c *gin.Context) {
	var req dto.CreateSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	item, err := h.structure.CreateSection(c.Request.Context(), session, c.Param("departmentId"), c.Param("courseId"), c.Param("yearLevelId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Rename godoc
// @Summary Rename a structure node
// @Description The node is addressed by the path ids; code applies to courses only
// @Tags Structure
// @Accept json
// @Produce json
// @Param payload body dto.RenameRequest true "Rename payload"
// @Success 200 {object} response.Envelope
// @Router /departments/{departmentId} [patch]
func (h *StructureHandler) Rename(c *gin.Context) {
	var req dto.RenameRequest
	if !bindJSON(c, &req) {
		return
	}
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	doc, err := h.structure.Rename(c.Request.Context(), session, nodeFromParams(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	data := make(map[string]interface{}, len(doc.Data)+1)
	for k, v := range doc.Data {
		data[k] = v
	}
	data["id"] = doc.ID
	response.OK(c, data)
}

// Delete godoc
// @Summary Delete a structure node and its children
// @Tags Structure
// @Success 204
// @Router /departments/{departmentId} [delete]
func (h *StructureHandler) Delete(c *gin.Context) {
	session, ok := activeSession(c, h.sessions)
	if !ok {
		return
	}
	if err := h.structure.Delete(c.Request.Context(), session, nodeFromParams(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
