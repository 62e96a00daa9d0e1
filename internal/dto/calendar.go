package dto

import "time"

// CreateAcademicYearRequest accepts "S.Y - 2024-2025" or "2024-2025".
type CreateAcademicYearRequest struct {
	Label string `json:"label" validate:"required,max=32"`
}

// UpdateAcademicYearRequest relabels a year. Status is never writable here.
type UpdateAcademicYearRequest struct {
	Label string `json:"label" validate:"required,max=32"`
}

// CreateSemesterRequest adds an Upcoming semester to a year.
type CreateSemesterRequest struct {
	Name      string    `json:"name" validate:"required,max=64"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// UpdateSemesterRequest changes name and dates only; nil fields are kept.
type UpdateSemesterRequest struct {
	Name      *string    `json:"name,omitempty" validate:"omitempty,max=64"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}
