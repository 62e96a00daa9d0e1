package repository

import "github.com/noah-isme/sma-attendance-api/pkg/docstore"

// AcademicYearsCollection is the root collection of the calendar.
func AcademicYearsCollection() string { return collAcademicYears }

func AcademicYearPath(yearID string) string {
	return docstore.Join(collAcademicYears, yearID)
}

func SemestersCollection(yearID string) string {
	return docstore.Join(AcademicYearPath(yearID), collSemesters)
}

func SemesterPath(yearID, semesterID string) string {
	return docstore.Join(SemestersCollection(yearID), semesterID)
}

func DepartmentsCollection(yearID, semesterID string) string {
	return docstore.Join(SemesterPath(yearID, semesterID), collDepartments)
}

func DepartmentPath(yearID, semesterID, departmentID string) string {
	return docstore.Join(DepartmentsCollection(yearID, semesterID), departmentID)
}

func CoursesCollection(yearID, semesterID, departmentID string) string {
	return docstore.Join(DepartmentPath(yearID, semesterID, departmentID), collCourses)
}

func CoursePath(yearID, semesterID, departmentID, courseID string) string {
	return docstore.Join(CoursesCollection(yearID, semesterID, departmentID), courseID)
}

func YearLevelsCollection(yearID, semesterID, departmentID, courseID string) string {
	return docstore.Join(CoursePath(yearID, semesterID, departmentID, courseID), collYearLevels)
}

func YearLevelPath(yearID, semesterID, departmentID, courseID, levelID string) string {
	return docstore.Join(YearLevelsCollection(yearID, semesterID, departmentID, courseID), levelID)
}

func SectionsCollection(yearID, semesterID, departmentID, courseID, levelID string) string {
	return docstore.Join(YearLevelPath(yearID, semesterID, departmentID, courseID, levelID), collSections)
}

func SectionPath(yearID, semesterID, departmentID, courseID, levelID, sectionID string) string {
	return docstore.Join(SectionsCollection(yearID, semesterID, departmentID, courseID, levelID), sectionID)
}
