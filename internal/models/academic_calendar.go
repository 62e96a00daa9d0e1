package models

import "time"

// SessionStatus is the lifecycle flag shared by academic years and semesters.
type SessionStatus string

const (
	StatusActive   SessionStatus = "Active"
	StatusUpcoming SessionStatus = "Upcoming"
	StatusArchived SessionStatus = "Archived"
)

// Rank orders statuses for listings: Active first, Archived last.
func (s SessionStatus) Rank() int {
	switch s {
	case StatusActive:
		return 0
	case StatusUpcoming:
		return 1
	case StatusArchived:
		return 2
	}
	return 3
}

// AcademicYear is a school year such as "2024-2025".
type AcademicYear struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Semester belongs to exactly one academic year.
type Semester struct {
	ID             string        `json:"id"`
	AcademicYearID string        `json:"academic_year_id"`
	Name           string        `json:"name"`
	Status         SessionStatus `json:"status"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
