package dto

type CreateDepartmentRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type CreateCourseRequest struct {
	Name string `json:"name" validate:"required,max=120"`
	Code string `json:"code" validate:"required,max=32"`
}

type CreateYearLevelRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

type CreateSectionRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// RenameRequest renames any structure node; Code applies to courses only.
type RenameRequest struct {
	Name string  `json:"name" validate:"required,max=120"`
	Code *string `json:"code,omitempty" validate:"omitempty,max=32"`
}
