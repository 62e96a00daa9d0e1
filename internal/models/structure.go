package models

import "time"

// Department is the top level of the session structure.
type Department struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AcademicYearID string    `json:"academic_year_id"`
	SemesterID     string    `json:"semester_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Course belongs to a department; both name and code are unique among siblings.
type Course struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Code           string    `json:"code"`
	DepartmentID   string    `json:"department_id"`
	DepartmentName string    `json:"department_name"`
	AcademicYearID string    `json:"academic_year_id"`
	SemesterID     string    `json:"semester_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type YearLevel struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	CourseID       string    `json:"course_id"`
	CourseName     string    `json:"course_name"`
	DepartmentID   string    `json:"department_id"`
	AcademicYearID string    `json:"academic_year_id"`
	SemesterID     string    `json:"semester_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Section struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	YearLevelID    string    `json:"year_level_id"`
	YearLevelName  string    `json:"year_level_name"`
	CourseID       string    `json:"course_id"`
	DepartmentID   string    `json:"department_id"`
	AcademicYearID string    `json:"academic_year_id"`
	SemesterID     string    `json:"semester_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
