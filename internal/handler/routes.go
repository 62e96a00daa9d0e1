package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/models"
)

// Handlers groups the route handlers registered under the API prefix.
type Handlers struct {
	AcademicYears *AcademicYearHandler
	Semesters     *SemesterHandler
	Session       *SessionHandler
	Structure     *StructureHandler
	Reports       *ReportHandler
	Metrics       *MetricsHandler
}

var (
	sessionAdmins  = middleware.RequireRoles(models.RoleAdmin)
	calendarWriter = middleware.RequireRoles(models.RoleAdmin, models.RoleAcademicHead)
	structWriter   = middleware.RequireRoles(models.RoleAdmin, models.RoleAcademicHead, models.RoleProgramHead)
)

// Register mounts every endpoint on api. auth must authenticate the caller
// and store the claims under middleware.ContextUserKey.
func Register(api gin.IRouter, h Handlers, auth gin.HandlerFunc) {
	secured := api.Group("", auth)

	years := secured.Group("/academic-years")
	years.GET("", h.AcademicYears.List)
	years.POST("", calendarWriter, h.AcademicYears.Create)
	years.GET("/:id", h.AcademicYears.Get)
	years.PUT("/:id", calendarWriter, h.AcademicYears.Update)
	years.DELETE("/:id", sessionAdmins, h.AcademicYears.Delete)
	years.POST("/:id/activate", sessionAdmins, h.AcademicYears.Activate)

	years.GET("/:id/semesters", h.Semesters.List)
	years.POST("/:id/semesters", calendarWriter, h.Semesters.Create)
	years.GET("/:id/semesters/:semesterId", h.Semesters.Get)
	years.PUT("/:id/semesters/:semesterId", calendarWriter, h.Semesters.Update)
	years.DELETE("/:id/semesters/:semesterId", sessionAdmins, h.Semesters.Delete)
	years.POST("/:id/semesters/:semesterId/activate", sessionAdmins, h.Semesters.Activate)

	session := secured.Group("/session")
	session.GET("/active", h.Session.Active)
	session.GET("/stream", h.Session.Stream)
	session.GET("/audit", sessionAdmins, h.Session.Audit)

	departments := secured.Group("/departments")
	departments.GET("", h.Structure.ListDepartments)
	departments.POST("", structWriter, h.Structure.CreateDepartment)
	department := departments.Group("/:departmentId")
	department.PATCH("", structWriter, h.Structure.Rename)
	department.DELETE("", structWriter, h.Structure.Delete)

	department.GET("/courses", h.Structure.ListCourses)
	department.POST("/courses", structWriter, h.Structure.CreateCourse)
	course := department.Group("/courses/:courseId")
	course.PATCH("", structWriter, h.Structure.Rename)
	course.DELETE("", structWriter, h.Structure.Delete)

	course.GET("/year-levels", h.Structure.ListYearLevels)
	course.POST("/year-levels", structWriter, h.Structure.CreateYearLevel)
	level := course.Group("/year-levels/:yearLevelId")
	level.PATCH("", structWriter, h.Structure.Rename)
	level.DELETE("", structWriter, h.Structure.Delete)

	level.GET("/sections", h.Structure.ListSections)
	level.POST("/sections", structWriter, h.Structure.CreateSection)
	level.PATCH("/sections/:sectionId", structWriter, h.Structure.Rename)
	level.DELETE("/sections/:sectionId", structWriter, h.Structure.Delete)

	secured.GET("/reports/session-structure", h.Reports.SessionStructure)
	secured.GET("/metrics/summary", sessionAdmins, h.Metrics.Summary)
}
