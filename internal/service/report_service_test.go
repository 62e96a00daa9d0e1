package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

func seedStructure(t *testing.T, svc *StructureService) {
	t.Helper()
	ctx := context.Background()
	science, err := svc.CreateDepartment(ctx, activeSession, dto.CreateDepartmentRequest{Name: "Science"})
	require.NoError(t, err)
	_, err = svc.CreateDepartment(ctx, activeSession, dto.CreateDepartmentRequest{Name: "Arts"})
	require.NoError(t, err)
	bio, err := svc.CreateCourse(ctx, activeSession, science.ID, dto.CreateCourseRequest{Name: "Biology", Code: "BIO"})
	require.NoError(t, err)
	level, err := svc.CreateYearLevel(ctx, activeSession, science.ID, bio.ID, dto.CreateYearLevelRequest{Name: "Grade 7"})
	require.NoError(t, err)
	for _, name := range []string{"B", "A"} {
		_, err = svc.CreateSection(ctx, activeSession, science.ID, bio.ID, level.ID, dto.CreateSectionRequest{Name: name})
		require.NoError(t, err)
	}
}

func TestReportSessionStructureRows(t *testing.T) {
	_, structure := newStructureEnv(t)
	seedStructure(t, structure)
	svc := NewReportService(structure, nil)

	data, err := svc.SessionStructure(context.Background(), activeSession)
	require.NoError(t, err)
	require.Len(t, data.Rows, 3)
	assert.Equal(t, map[string]string{colDepartment: "Arts", colCourse: "", colCode: "", colYearLevel: "", colSection: ""}, data.Rows[0])
	assert.Equal(t, "A", data.Rows[1][colSection])
	assert.Equal(t, "B", data.Rows[2][colSection])
	assert.Equal(t, "BIO", data.Rows[2][colCode])
}

func TestReportRenderSessionStructure(t *testing.T) {
	_, structure := newStructureEnv(t)
	seedStructure(t, structure)
	svc := NewReportService(structure, nil)
	svc.now = func() time.Time { return time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	report, err := svc.RenderSessionStructure(ctx, activeSession, "")
	require.NoError(t, err)
	assert.Equal(t, "session-structure-2024-2025-20240901.csv", report.Filename)
	assert.Equal(t, "text/csv", report.ContentType)
	lines := bytes.Split(bytes.TrimSpace(report.Body), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Equal(t, "Department,Course,Code,Year Level,Section", string(lines[0]))

	report, err = svc.RenderSessionStructure(ctx, activeSession, dto.ReportFormatPDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(report.Body, []byte("%PDF")))

	_, err = svc.RenderSessionStructure(ctx, activeSession, "xlsx")
	requireCode(t, err, appErrors.ErrValidation)
	_, err = svc.RenderSessionStructure(ctx, models.ActiveSession{}, dto.ReportFormatCSV)
	requireCode(t, err, appErrors.ErrNoActiveSession)
}
