package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structureDataset() Dataset {
	return Dataset{
		Title:   "Session structure 2024-2025 / 1st Semester",
		Headers: []string{"department", "course", "course_code", "year_level", "section"},
		Rows: []map[string]string{
			{"department": "Engineering", "course": "Computer Engineering", "course_code": "BSCpE", "year_level": "1st Year", "section": "A"},
			{"department": "IT"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(structureDataset())
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, "department,course,course_code,year_level,section", string(lines[0]))
	assert.Equal(t, "IT,,,,", string(lines[2]))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(structureDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderersDescribeOutput(t *testing.T) {
	var r Renderer = NewPDFExporter()
	assert.Equal(t, "application/pdf", r.ContentType())
	r = NewCSVExporter()
	assert.Equal(t, "csv", r.Extension())
}
