package models

import "time"

// ActiveSession is the academic year and semester that scope every dependent
// entity. It is always passed explicitly.
type ActiveSession struct {
	AcademicYearID    string `json:"academic_year_id"`
	AcademicYearLabel string `json:"academic_year_label"`
	SemesterID        string `json:"semester_id"`
	SemesterName      string `json:"semester_name"`
}

// Complete reports whether both the year and the semester are set.
func (s ActiveSession) Complete() bool {
	return s.AcademicYearID != "" && s.SemesterID != ""
}

// SessionState tells consumers which part of the session is in effect.
type SessionState string

const (
	SessionStateActive           SessionState = "ACTIVE"
	SessionStateNoActiveYear     SessionState = "NO_ACTIVE_YEAR"
	SessionStateNoActiveSemester SessionState = "NO_ACTIVE_SEMESTER"
)

// SessionSnapshot is one observation of the active session.
type SessionSnapshot struct {
	State             SessionState `json:"state"`
	AcademicYearID    string       `json:"academic_year_id,omitempty"`
	AcademicYearLabel string       `json:"academic_year_label,omitempty"`
	SemesterID        *string      `json:"semester_id"`
	SemesterName      *string      `json:"semester_name"`

	MultipleActiveYears     bool `json:"multiple_active_years,omitempty"`
	MultipleActiveSemesters bool `json:"multiple_active_semesters,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

// Session converts the snapshot into the scope value expected by writes.
// Missing parts stay empty.
func (s SessionSnapshot) Session() ActiveSession {
	session := ActiveSession{
		AcademicYearID:    s.AcademicYearID,
		AcademicYearLabel: s.AcademicYearLabel,
	}
	if s.SemesterID != nil {
		session.SemesterID = *s.SemesterID
	}
	if s.SemesterName != nil {
		session.SemesterName = *s.SemesterName
	}
	return session
}

// SameAs compares two snapshots ignoring the observation time.
func (s SessionSnapshot) SameAs(o SessionSnapshot) bool {
	return s.State == o.State &&
		s.AcademicYearID == o.AcademicYearID &&
		s.AcademicYearLabel == o.AcademicYearLabel &&
		equalPtr(s.SemesterID, o.SemesterID) &&
		equalPtr(s.SemesterName, o.SemesterName) &&
		s.MultipleActiveYears == o.MultipleActiveYears &&
		s.MultipleActiveSemesters == o.MultipleActiveSemesters
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// AnomalyKind names a violated session invariant.
type AnomalyKind string

const (
	AnomalyMultipleActiveYears     AnomalyKind = "multiple_active_years"
	AnomalyMultipleActiveSemesters AnomalyKind = "multiple_active_semesters"
)

// SessionAnomaly reports documents that share an Active flag within one scope.
type SessionAnomaly struct {
	Kind  AnomalyKind `json:"kind"`
	Scope string      `json:"scope"`
	IDs   []string    `json:"ids"`
}
