package dto

// ActivateAcademicYearRequest moves the Active flag to YearID. When
// ExpectedActiveYearID is set the switch only happens if that year is still
// the active one; an empty value means "no year is active".
type ActivateAcademicYearRequest struct {
	YearID               string  `json:"-" validate:"required"`
	ExpectedActiveYearID *string `json:"expected_active_year_id,omitempty" validate:"omitempty,max=128"`
}

// ActivateSemesterRequest is the semester counterpart scoped to one year.
type ActivateSemesterRequest struct {
	SemesterID               string  `json:"-" validate:"required"`
	ExpectedActiveSemesterID *string `json:"expected_active_semester_id,omitempty" validate:"omitempty,max=128"`
}

// ActivationResult describes the outcome of an activation.
type ActivationResult struct {
	ActivatedID string   `json:"activated_id"`
	ArchivedIDs []string `json:"archived_ids"`
	Changed     bool     `json:"changed"`
}
