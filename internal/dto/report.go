package dto

// ReportFormat selects the rendered output of a report.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// SessionStructureQuery is bound from the report query string.
type SessionStructureQuery struct {
	Format ReportFormat `form:"format" validate:"omitempty,oneof=csv pdf"`
}
