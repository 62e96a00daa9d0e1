package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type structureRepository interface {
	Insert(ctx context.Context, spec repository.InsertSpec) (docstore.Document, error)
	Rename(ctx context.Context, path string, unique []docstore.Filter, fields, childFields map[string]interface{}, scope ...string) error
	Delete(ctx context.Context, path string, scope ...string) error
	Get(ctx context.Context, path string) (docstore.Document, error)
	ListDepartments(ctx context.Context, collection string) ([]models.Department, error)
	ListCourses(ctx context.Context, collection string) ([]models.Course, error)
	ListYearLevels(ctx context.Context, collection string) ([]models.YearLevel, error)
	ListSections(ctx context.Context, collection string) ([]models.Section, error)
}

// StructureService manages the department, course, year level and section
// tree under an explicit session. Every write checks, in order: the session
// is complete, the parent exists, no sibling holds the name (or course code).
// The last two checks and the insert share one store transaction.
type StructureService struct {
	repo      structureRepository
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewStructureService creates a new structure service instance.
func NewStructureService(repo structureRepository, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *StructureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructureService{repo: repo, validator: validate, metrics: metrics, logger: logger}
}

func requireSession(session models.ActiveSession) error {
	if !session.Complete() {
		return appErrors.Clone(appErrors.ErrNoActiveSession, "")
	}
	return nil
}

// sessionScope lists the documents that must still be Active when a write
// under session commits.
func sessionScope(session models.ActiveSession) []string {
	return []string{
		repository.AcademicYearPath(session.AcademicYearID),
		repository.SemesterPath(session.AcademicYearID, session.SemesterID),
	}
}

func nameFilter(name string) docstore.Filter {
	return docstore.Filter{Field: "name", Value: name}
}

func (s *StructureService) insert(ctx context.Context, op string, spec repository.InsertSpec, parentNotFound string) (docstore.Document, error) {
	start := time.Now()
	doc, err := s.repo.Insert(ctx, spec)
	s.metrics.ObserveStoreOperation(op, time.Since(start))
	if err != nil {
		return docstore.Document{}, storeError(err, parentNotFound, strings.ReplaceAll(op, "_", " "))
	}
	return doc, nil
}

func parentName(parent *docstore.Document) string {
	if parent == nil {
		return ""
	}
	name, _ := parent.Data["name"].(string)
	return name
}

// CreateDepartment adds a department under the session semester.
func (s *StructureService) CreateDepartment(ctx context.Context, session models.ActiveSession, req dto.CreateDepartmentRequest) (*models.Department, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid department payload")
	}
	name := strings.TrimSpace(req.Name)

	now := repository.Now()
	doc, err := s.insert(ctx, "create_department", repository.InsertSpec{
		Parent:      repository.SemesterPath(session.AcademicYearID, session.SemesterID),
		Collection:  repository.DepartmentsCollection(session.AcademicYearID, session.SemesterID),
		Unique:      []docstore.Filter{nameFilter(name)},
		ActiveScope: sessionScope(session),
		Build: func(*docstore.Document) (map[string]interface{}, error) {
			return repository.Encode(models.Department{
				Name:           name,
				AcademicYearID: session.AcademicYearID,
				SemesterID:     session.SemesterID,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		},
	}, "active semester not found")
	if err != nil {
		return nil, err
	}

	s.logger.Info("department created",
		zap.String("department_id", doc.ID),
		zap.String("academic_year_id", session.AcademicYearID),
		zap.String("semester_id", session.SemesterID),
	)
	return repository.DecodeDepartment(doc)
}

// CreateCourse adds a course to a department. Name and code are each unique
// within the department.
func (s *StructureService) CreateCourse(ctx context.Context, session models.ActiveSession, departmentID string, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid course payload")
	}
	name := strings.TrimSpace(req.Name)
	code := strings.TrimSpace(req.Code)
	y, sem := session.AcademicYearID, session.SemesterID

	now := repository.Now()
	doc, err := s.insert(ctx, "create_course", repository.InsertSpec{
		Parent:      repository.DepartmentPath(y, sem, departmentID),
		Collection:  repository.CoursesCollection(y, sem, departmentID),
		Unique:      []docstore.Filter{nameFilter(name), {Field: "code", Value: code}},
		ActiveScope: sessionScope(session),
		Build: func(parent *docstore.Document) (map[string]interface{}, error) {
			return repository.Encode(models.Course{
				Name:           name,
				Code:           code,
				DepartmentID:   departmentID,
				DepartmentName: parentName(parent),
				AcademicYearID: y,
				SemesterID:     sem,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		},
	}, "department not found")
	if err != nil {
		return nil, err
	}

	s.logger.Info("course created", zap.String("course_id", doc.ID), zap.String("department_id", departmentID))
	return repository.DecodeCourse(doc)
}

// CreateYearLevel adds a year level to a course.
func (s *StructureService) CreateYearLevel(ctx context.Context, session models.ActiveSession, departmentID, courseID string, req dto.CreateYearLevelRequest) (*models.YearLevel, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid year level payload")
	}
	name := strings.TrimSpace(req.Name)
	y, sem := session.AcademicYearID, session.SemesterID

	now := repository.Now()
	doc, err := s.insert(ctx, "create_year_level", repository.InsertSpec{
		Parent:      repository.CoursePath(y, sem, departmentID, courseID),
		Collection:  repository.YearLevelsCollection(y, sem, departmentID, courseID),
		Unique:      []docstore.Filter{nameFilter(name)},
		ActiveScope: sessionScope(session),
		Build: func(parent *docstore.Document) (map[string]interface{}, error) {
			return repository.Encode(models.YearLevel{
				Name:           name,
				CourseID:       courseID,
				CourseName:     parentName(parent),
				DepartmentID:   departmentID,
				AcademicYearID: y,
				SemesterID:     sem,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		},
	}, "course not found")
	if err != nil {
		return nil, err
	}

	s.logger.Info("year level created", zap.String("year_level_id", doc.ID), zap.String("course_id", courseID))
	return repository.DecodeYearLevel(doc)
}

// CreateSection adds a section to a year level.
func (s *StructureService) CreateSection(ctx context.Context, session models.ActiveSession, departmentID, courseID, yearLevelID string, req dto.CreateSectionRequest) (*models.Section, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid section payload")
	}
	name := strings.TrimSpace(req.Name)
	y, sem := session.AcademicYearID, session.SemesterID

	now := repository.Now()
	doc, err := s.insert(ctx, "create_section", repository.InsertSpec{
		Parent:      repository.YearLevelPath(y, sem, departmentID, courseID, yearLevelID),
		Collection:  repository.SectionsCollection(y, sem, departmentID, courseID, yearLevelID),
		Unique:      []docstore.Filter{nameFilter(name)},
		ActiveScope: sessionScope(session),
		Build: func(parent *docstore.Document) (map[string]interface{}, error) {
			return repository.Encode(models.Section{
				Name:           name,
				YearLevelID:    yearLevelID,
				YearLevelName:  parentName(parent),
				CourseID:       courseID,
				DepartmentID:   departmentID,
				AcademicYearID: y,
				SemesterID:     sem,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		},
	}, "year level not found")
	if err != nil {
		return nil, err
	}

	s.logger.Info("section created", zap.String("section_id", doc.ID), zap.String("year_level_id", yearLevelID))
	return repository.DecodeSection(doc)
}

func (s *StructureService) requireParent(ctx context.Context, path, notFound string) error {
	if _, err := s.repo.Get(ctx, path); err != nil {
		return storeError(err, notFound, "load parent")
	}
	return nil
}

func (s *StructureService) ListDepartments(ctx context.Context, session models.ActiveSession) ([]models.Department, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	items, err := s.repo.ListDepartments(ctx, repository.DepartmentsCollection(session.AcademicYearID, session.SemesterID))
	if err != nil {
		return nil, storeError(err, "departments not found", "list departments")
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *StructureService) ListCourses(ctx context.Context, session models.ActiveSession, departmentID string) ([]models.Course, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	y, sem := session.AcademicYearID, session.SemesterID
	if err := s.requireParent(ctx, repository.DepartmentPath(y, sem, departmentID), "department not found"); err != nil {
		return nil, err
	}
	items, err := s.repo.ListCourses(ctx, repository.CoursesCollection(y, sem, departmentID))
	if err != nil {
		return nil, storeError(err, "courses not found", "list courses")
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *StructureService) ListYearLevels(ctx context.Context, session models.ActiveSession, departmentID, courseID string) ([]models.YearLevel, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	y, sem := session.AcademicYearID, session.SemesterID
	if err := s.requireParent(ctx, repository.CoursePath(y, sem, departmentID, courseID), "course not found"); err != nil {
		return nil, err
	}
	items, err := s.repo.ListYearLevels(ctx, repository.YearLevelsCollection(y, sem, departmentID, courseID))
	if err != nil {
		return nil, storeError(err, "year levels not found", "list year levels")
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *StructureService) ListSections(ctx context.Context, session models.ActiveSession, departmentID, courseID, yearLevelID string) ([]models.Section, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	y, sem := session.AcademicYearID, session.SemesterID
	if err := s.requireParent(ctx, repository.YearLevelPath(y, sem, departmentID, courseID, yearLevelID), "year level not found"); err != nil {
		return nil, err
	}
	items, err := s.repo.ListSections(ctx, repository.SectionsCollection(y, sem, departmentID, courseID, yearLevelID))
	if err != nil {
		return nil, storeError(err, "sections not found", "list sections")
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// StructureNode addresses one node of the session tree. Empty trailing ids
// select a higher level: only DepartmentID set means a department.
type StructureNode struct {
	DepartmentID string
	CourseID     string
	YearLevelID  string
	SectionID    string
}

type nodeInfo struct {
	path       string
	label      string
	childField string
	isCourse   bool
}

func (n StructureNode) resolve(session models.ActiveSession) (nodeInfo, error) {
	y, sem := session.AcademicYearID, session.SemesterID
	switch {
	case n.DepartmentID == "":
		return nodeInfo{}, appErrors.Clone(appErrors.ErrValidation, "department id is required")
	case n.CourseID == "":
		return nodeInfo{path: repository.DepartmentPath(y, sem, n.DepartmentID), label: "department", childField: "department_name"}, nil
	case n.YearLevelID == "":
		return nodeInfo{path: repository.CoursePath(y, sem, n.DepartmentID, n.CourseID), label: "course", childField: "course_name", isCourse: true}, nil
	case n.SectionID == "":
		return nodeInfo{path: repository.YearLevelPath(y, sem, n.DepartmentID, n.CourseID, n.YearLevelID), label: "year level", childField: "year_level_name"}, nil
	}
	return nodeInfo{path: repository.SectionPath(y, sem, n.DepartmentID, n.CourseID, n.YearLevelID, n.SectionID), label: "section"}, nil
}

// Rename changes the name (and for courses the code) of a node. The same
// duplicate rules as creation apply, ignoring the node itself. Children
// carrying the old name as a denormalized copy are updated with it.
func (s *StructureService) Rename(ctx context.Context, session models.ActiveSession, node StructureNode, req dto.RenameRequest) (docstore.Document, error) {
	if err := requireSession(session); err != nil {
		return docstore.Document{}, err
	}
	if err := s.validator.Struct(req); err != nil {
		return docstore.Document{}, validationError(err, "invalid rename payload")
	}
	info, err := node.resolve(session)
	if err != nil {
		return docstore.Document{}, err
	}

	name := strings.TrimSpace(req.Name)
	unique := []docstore.Filter{nameFilter(name)}
	fields := map[string]interface{}{"name": name}
	if req.Code != nil {
		if !info.isCourse {
			return docstore.Document{}, appErrors.Clone(appErrors.ErrValidation, "only courses have a code")
		}
		code := strings.TrimSpace(*req.Code)
		unique = append(unique, docstore.Filter{Field: "code", Value: code})
		fields["code"] = code
	}
	var childFields map[string]interface{}
	if info.childField != "" {
		childFields = map[string]interface{}{info.childField: name}
	}

	start := time.Now()
	err = s.repo.Rename(ctx, info.path, unique, fields, childFields, sessionScope(session)...)
	s.metrics.ObserveStoreOperation("rename_structure", time.Since(start))
	if err != nil {
		return docstore.Document{}, storeError(err, info.label+" not found", "rename "+info.label)
	}

	doc, err := s.repo.Get(ctx, info.path)
	if err != nil {
		return docstore.Document{}, storeError(err, info.label+" not found", "load "+info.label)
	}
	s.logger.Info("structure node renamed", zap.String("path", info.path), zap.String("name", name))
	return doc, nil
}

// Delete removes a node and everything below it.
func (s *StructureService) Delete(ctx context.Context, session models.ActiveSession, node StructureNode) error {
	if err := requireSession(session); err != nil {
		return err
	}
	info, err := node.resolve(session)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.repo.Delete(ctx, info.path, sessionScope(session)...)
	s.metrics.ObserveStoreOperation("delete_structure", time.Since(start))
	if err != nil {
		return storeError(err, info.label+" not found", "delete "+info.label)
	}
	s.logger.Info("structure node deleted", zap.String("path", info.path))
	return nil
}
