package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/middleware"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/internal/service"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
)

type testAPI struct {
	router     *gin.Engine
	store      *docstore.MemoryStore
	directory  *service.SessionDirectory
	activation *service.SessionActivationService
}

func newTestAPI(t *testing.T, heartbeat time.Duration) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	years := repository.NewAcademicYearRepository(store)
	semesters := repository.NewSemesterRepository(store)
	structureRepo := repository.NewStructureRepository(store)
	metrics := service.NewMetricsService()

	directory := service.NewSessionDirectory(years, semesters, nil, metrics, time.Minute, nil)
	activation := service.NewSessionActivationService(repository.NewStatusRepository(store), nil, metrics, nil, nil)
	calendar := service.NewAcademicCalendarService(years, semesters, []string{"1st Semester", "2nd Semester", "Summer"}, nil, nil, nil)
	structure := service.NewStructureService(structureRepo, nil, metrics, nil)
	reports := service.NewReportService(structure, nil)

	router := gin.New()
	router.Use(middleware.Metrics(metrics))
	testAuth := func(c *gin.Context) {
		role := c.GetHeader("X-Test-Role")
		if role == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "test-user", Role: models.UserRole(role)})
		c.Next()
	}
	Register(router.Group("/api/v1"), Handlers{
		AcademicYears: NewAcademicYearHandler(calendar, activation),
		Semesters:     NewSemesterHandler(calendar, activation),
		Session:       NewSessionHandler(directory, heartbeat, nil),
		Structure:     NewStructureHandler(structure, directory),
		Reports:       NewReportHandler(reports, directory),
		Metrics:       NewMetricsHandler(metrics),
	}, testAuth)

	return &testAPI{router: router, store: store, directory: directory, activation: activation}
}

func (a *testAPI) do(t *testing.T, method, path string, role models.UserRole, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, _ := http.NewRequest(method, "/api/v1"+path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Test-Role", string(role))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dest), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	require.NotNil(t, env.Error, w.Body.String())
	return env.Error.Code
}

func (a *testAPI) setupSession(t *testing.T) (yearID, semesterID string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/academic-years", models.RoleAcademicHead, gin.H{"label": "S.Y - 2024-2025"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var year models.AcademicYear
	decode(t, w, &year)

	w = a.do(t, http.MethodPost, "/academic-years/"+year.ID+"/semesters", models.RoleAcademicHead, gin.H{
		"name":       "1st Semester",
		"start_date": "2024-08-01T00:00:00Z",
		"end_date":   "2024-12-20T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var semester models.Semester
	decode(t, w, &semester)

	w = a.do(t, http.MethodPost, "/academic-years/"+year.ID+"/activate", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.do(t, http.MethodPost, "/academic-years/"+year.ID+"/semesters/"+semester.ID+"/activate", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return year.ID, semester.ID
}

func TestSessionLifecycleRoutes(t *testing.T) {
	api := newTestAPI(t, time.Minute)

	w := api.do(t, http.MethodGet, "/session/active", models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap models.SessionSnapshot
	decode(t, w, &snap)
	assert.Equal(t, models.SessionStateNoActiveYear, snap.State)

	w = api.do(t, http.MethodPost, "/departments", models.RoleAdmin, gin.H{"name": "Science"})
	require.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, "NO_ACTIVE_SESSION", errorCode(t, w))

	yearID, semesterID := api.setupSession(t)

	w = api.do(t, http.MethodGet, "/session/active", models.RoleStudent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &snap)
	assert.Equal(t, models.SessionStateActive, snap.State)
	assert.Equal(t, yearID, snap.AcademicYearID)
	assert.Equal(t, semesterID, *snap.SemesterID)

	w = api.do(t, http.MethodPost, "/departments", models.RoleProgramHead, gin.H{"name": "Science"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dept models.Department
	decode(t, w, &dept)
	assert.Equal(t, semesterID, dept.SemesterID)

	w = api.do(t, http.MethodPost, "/departments", models.RoleProgramHead, gin.H{"name": "Science"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_NAME", errorCode(t, w))
	assert.Equal(t, 1, api.store.Count(repository.DepartmentsCollection(yearID, semesterID)))

	w = api.do(t, http.MethodPost, "/departments/"+dept.ID+"/courses", models.RoleProgramHead, gin.H{"name": "Biology", "code": "bio"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var course models.Course
	decode(t, w, &course)

	w = api.do(t, http.MethodPatch, "/departments/"+dept.ID, models.RoleAcademicHead, gin.H{"name": "Natural Sciences"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/departments/"+dept.ID+"/courses", models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var courses []models.Course
	decode(t, w, &courses)
	require.Len(t, courses, 1)
	assert.Equal(t, "Natural Sciences", courses[0].DepartmentName)

	w = api.do(t, http.MethodDelete, "/departments/"+dept.ID+"/courses/"+course.ID, models.RoleAdmin, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestActivationRoutes(t *testing.T) {
	api := newTestAPI(t, time.Minute)
	yearID, semesterID := api.setupSession(t)

	w := api.do(t, http.MethodPost, "/academic-years", models.RoleAdmin, gin.H{"label": "2025-2026"})
	require.Equal(t, http.StatusCreated, w.Code)
	var next models.AcademicYear
	decode(t, w, &next)

	w = api.do(t, http.MethodPost, "/academic-years/"+next.ID+"/activate", models.RoleAcademicHead, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/academic-years/"+next.ID+"/activate", models.RoleAdmin, gin.H{"expected_active_year_id": "someone-else"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", errorCode(t, w))

	w = api.do(t, http.MethodDelete, "/academic-years/"+yearID, models.RoleAdmin, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ACTIVE_YEAR_PROTECTED", errorCode(t, w))
	w = api.do(t, http.MethodDelete, "/academic-years/"+yearID+"/semesters/"+semesterID, models.RoleAdmin, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ACTIVE_SEMESTER_PROTECTED", errorCode(t, w))

	w = api.do(t, http.MethodPost, "/academic-years/"+next.ID+"/activate", models.RoleAdmin, gin.H{"expected_active_year_id": yearID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result struct {
		ActivatedID string   `json:"activated_id"`
		ArchivedIDs []string `json:"archived_ids"`
		Changed     bool     `json:"changed"`
	}
	decode(t, w, &result)
	assert.Equal(t, next.ID, result.ActivatedID)
	assert.Equal(t, []string{yearID}, result.ArchivedIDs)
	assert.True(t, result.Changed)

	w = api.do(t, http.MethodGet, "/session/active", models.RoleTeacher, nil)
	var snap models.SessionSnapshot
	decode(t, w, &snap)
	assert.Equal(t, models.SessionStateNoActiveSemester, snap.State)

	w = api.do(t, http.MethodPost, "/departments", models.RoleAdmin, gin.H{"name": "Science"})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = api.do(t, http.MethodGet, "/session/audit", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy":true`)

	w = api.do(t, http.MethodGet, "/metrics/summary", models.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.SystemMetrics
	decode(t, w, &summary)
	assert.Equal(t, uint64(3), summary.Activations)
}

func TestRoutesRequireAuthentication(t *testing.T) {
	api := newTestAPI(t, time.Minute)
	for _, path := range []string{"/session/active", "/academic-years", "/departments", "/reports/session-structure"} {
		w := api.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := api.do(t, http.MethodPost, "/academic-years", models.RoleTeacher, gin.H{"label": "2024-2025"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodGet, "/session/audit", models.RoleAcademicHead, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSessionStructureReportRoute(t *testing.T) {
	api := newTestAPI(t, time.Minute)
	api.setupSession(t)
	w := api.do(t, http.MethodPost, "/departments", models.RoleAdmin, gin.H{"name": "Science"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodGet, "/reports/session-structure?format=csv", models.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "session-structure-2024-2025-")
	assert.Contains(t, w.Body.String(), "Science")

	w = api.do(t, http.MethodGet, "/reports/session-structure?format=xlsx", models.RoleTeacher, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (a *testAPI) stream(t *testing.T, timeout time.Duration, during func()) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/api/v1/session/stream", nil)
	req.Header.Set("X-Test-Role", string(models.RoleTeacher))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.router.ServeHTTP(w, req)
	}()
	if during != nil {
		during()
	}
	<-done
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	return w.Body.String()
}

func TestSessionStreamRoute(t *testing.T) {
	api := newTestAPI(t, time.Minute)
	api.setupSession(t)

	body := api.stream(t, 300*time.Millisecond, nil)
	assert.Equal(t, 1, strings.Count(body, "event:session"))
	assert.Contains(t, body, `"state":"ACTIVE"`)
	assert.NotContains(t, body, "event:heartbeat")
}

func TestSessionStreamRouteFollowsChanges(t *testing.T) {
	api := newTestAPI(t, time.Minute)
	w := api.do(t, http.MethodPost, "/academic-years", models.RoleAdmin, gin.H{"label": "2024-2025"})
	require.Equal(t, http.StatusCreated, w.Code)
	var year models.AcademicYear
	decode(t, w, &year)

	body := api.stream(t, 500*time.Millisecond, func() {
		time.Sleep(100 * time.Millisecond)
		rec := api.do(t, http.MethodPost, "/academic-years/"+year.ID+"/activate", models.RoleAdmin, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})
	assert.Equal(t, 2, strings.Count(body, "event:session"), body)
	assert.Less(t, strings.Index(body, `"state":"NO_ACTIVE_YEAR"`), strings.Index(body, `"state":"NO_ACTIVE_SEMESTER"`))
}

func TestSessionStreamRouteHeartbeat(t *testing.T) {
	api := newTestAPI(t, 20*time.Millisecond)
	body := api.stream(t, 150*time.Millisecond, nil)
	assert.Contains(t, body, "event:heartbeat")
}

func TestSessionStreamRouteReportsStoreFailure(t *testing.T) {
	api := newTestAPI(t, time.Minute)
	body := api.stream(t, time.Second, func() {
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, api.store.Close())
	})
	assert.Contains(t, body, "event:error")
	assert.Contains(t, body, "STORE_UNAVAILABLE")
}
