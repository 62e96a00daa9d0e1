package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
)

// StructureRepository persists the department, course, year level and section
// tree of a session.
type StructureRepository struct {
	store docstore.Store
}

// NewStructureRepository instantiates a structure repository.
func NewStructureRepository(store docstore.Store) *StructureRepository {
	return &StructureRepository{store: store}
}

// Insert runs spec in one transaction and returns the stored document.
func (r *StructureRepository) Insert(ctx context.Context, spec InsertSpec) (docstore.Document, error) {
	return insertUnique(ctx, r.store, spec)
}

// Rename updates fields of path after checking unique among its siblings.
// childFields are written onto the direct children in the same transaction.
// The write is refused with ErrInactiveScope unless every scope document is Active.
func (r *StructureRepository) Rename(ctx context.Context, path string, unique []docstore.Filter, fields, childFields map[string]interface{}, scope ...string) error {
	return updateUnique(ctx, r.store, path, unique, fields, childFields, scope...)
}

// Delete removes path and every nested node, under the same scope rule as Rename.
func (r *StructureRepository) Delete(ctx context.Context, path string, scope ...string) error {
	return deleteTree(ctx, r.store, path, false, scope...)
}

// Get loads a single node document.
func (r *StructureRepository) Get(ctx context.Context, path string) (docstore.Document, error) {
	return r.store.Get(ctx, path)
}

// Count returns the number of documents directly inside collection.
func (r *StructureRepository) Count(ctx context.Context, collection string) (int, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(collection))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return len(docs), nil
}

func (r *StructureRepository) ListDepartments(ctx context.Context, collection string) ([]models.Department, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(collection))
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return decodeAll[models.Department](docs)
}

func (r *StructureRepository) ListCourses(ctx context.Context, collection string) ([]models.Course, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(collection))
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return decodeAll[models.Course](docs)
}

func (r *StructureRepository) ListYearLevels(ctx context.Context, collection string) ([]models.YearLevel, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(collection))
	if err != nil {
		return nil, fmt.Errorf("list year levels: %w", err)
	}
	return decodeAll[models.YearLevel](docs)
}

func (r *StructureRepository) ListSections(ctx context.Context, collection string) ([]models.Section, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(collection))
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return decodeAll[models.Section](docs)
}

// DecodeDepartment and friends expose the document decoding used by services.
func DecodeDepartment(doc docstore.Document) (*models.Department, error) {
	return decode[models.Department](doc)
}

func DecodeCourse(doc docstore.Document) (*models.Course, error) {
	return decode[models.Course](doc)
}

func DecodeYearLevel(doc docstore.Document) (*models.YearLevel, error) {
	return decode[models.YearLevel](doc)
}

func DecodeSection(doc docstore.Document) (*models.Section, error) {
	return decode[models.Section](doc)
}

// Encode exposes model encoding for InsertSpec builders.
func Encode(v interface{}) (map[string]interface{}, error) {
	return encode(v)
}
