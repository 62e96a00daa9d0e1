package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
)

func TestStructureRepositoryInsertRejectsDuplicates(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, SemesterPath("y1", "s1"), map[string]interface{}{"name": "1st Semester"}))
	repo := NewStructureRepository(store)
	collection := DepartmentsCollection("y1", "s1")

	spec := InsertSpec{
		Parent:     SemesterPath("y1", "s1"),
		Collection: collection,
		Unique:     []docstore.Filter{{Field: "name", Value: "Engineering"}},
		Build: func(*docstore.Document) (map[string]interface{}, error) {
			return Encode(models.Department{Name: "Engineering", AcademicYearID: "y1", SemesterID: "s1"})
		},
	}
	doc, err := repo.Insert(ctx, spec)
	require.NoError(t, err)
	dept, err := DecodeDepartment(doc)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, dept.ID)
	assert.Equal(t, "Engineering", dept.Name)

	_, err = repo.Insert(ctx, spec)
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "name", dup.Field)

	count, err := repo.Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStructureRepositoryInsertRequiresParent(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewStructureRepository(store)

	_, err := repo.Insert(context.Background(), InsertSpec{
		Parent:     DepartmentPath("y1", "s1", "missing"),
		Collection: CoursesCollection("y1", "s1", "missing"),
		Build: func(*docstore.Document) (map[string]interface{}, error) {
			return map[string]interface{}{"name": "x"}, nil
		},
	})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Zero(t, store.Count(CoursesCollection("y1", "s1", "missing")))
}

func TestStructureRepositoryRenameExcludesSelf(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	collection := DepartmentsCollection("y1", "s1")
	require.NoError(t, store.Set(ctx, docstore.Join(collection, "d1"), map[string]interface{}{"name": "IT"}))
	require.NoError(t, store.Set(ctx, docstore.Join(collection, "d2"), map[string]interface{}{"name": "Engineering"}))
	repo := NewStructureRepository(store)

	unique := func(name string) []docstore.Filter { return []docstore.Filter{{Field: "name", Value: name}} }
	require.NoError(t, repo.Rename(ctx, docstore.Join(collection, "d1"), unique("IT"), map[string]interface{}{"name": "IT"}, nil))

	err := repo.Rename(ctx, docstore.Join(collection, "d1"), unique("Engineering"), map[string]interface{}{"name": "Engineering"}, nil)
	var dup *DuplicateError
	assert.ErrorAs(t, err, &dup)
}

func TestStructureRepositoryRenameUpdatesChildren(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, DepartmentPath("y1", "s1", "d1"), map[string]interface{}{"name": "IT"}))
	require.NoError(t, store.Set(ctx, CoursePath("y1", "s1", "d1", "c1"), map[string]interface{}{"name": "BSIT", "department_name": "IT"}))
	require.NoError(t, store.Set(ctx, CoursePath("y1", "s1", "d1", "c2"), map[string]interface{}{"name": "BSCS", "department_name": "IT"}))

	err := NewStructureRepository(store).Rename(ctx, DepartmentPath("y1", "s1", "d1"),
		[]docstore.Filter{{Field: "name", Value: "Computing"}},
		map[string]interface{}{"name": "Computing"},
		map[string]interface{}{"department_name": "Computing"},
	)
	require.NoError(t, err)

	for _, id := range []string{"c1", "c2"} {
		doc, err := store.Get(ctx, CoursePath("y1", "s1", "d1", id))
		require.NoError(t, err)
		assert.Equal(t, "Computing", doc.Data["department_name"])
	}
}

func TestStructureRepositoryDeleteCascades(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, DepartmentPath("y1", "s1", "d1"), map[string]interface{}{"name": "IT"}))
	require.NoError(t, store.Set(ctx, CoursePath("y1", "s1", "d1", "c1"), map[string]interface{}{"name": "BSIT"}))
	require.NoError(t, store.Set(ctx, YearLevelPath("y1", "s1", "d1", "c1", "l1"), map[string]interface{}{"name": "1st Year"}))
	require.NoError(t, store.Set(ctx, SectionPath("y1", "s1", "d1", "c1", "l1", "a"), map[string]interface{}{"name": "A"}))

	require.NoError(t, NewStructureRepository(store).Delete(ctx, DepartmentPath("y1", "s1", "d1")))
	assert.Zero(t, store.Count(DepartmentsCollection("y1", "s1")))
	assert.Zero(t, store.Count(SectionsCollection("y1", "s1", "d1", "c1", "l1")))
}

func TestAcademicYearRepositoryCreateAndRelabel(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	repo := NewAcademicYearRepository(store)

	year := &models.AcademicYear{Label: "2024-2025", Status: models.StatusUpcoming}
	require.NoError(t, repo.Create(ctx, year))
	require.NotEmpty(t, year.ID)

	var dup *DuplicateError
	assert.ErrorAs(t, repo.Create(ctx, &models.AcademicYear{Label: "2024-2025", Status: models.StatusUpcoming}), &dup)

	require.NoError(t, repo.UpdateLabel(ctx, year.ID, "2025-2026"))
	loaded, err := repo.FindByID(ctx, year.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-2026", loaded.Label)
	assert.Equal(t, models.StatusUpcoming, loaded.Status)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestStructureRepositoryWritesRequireActiveScope(t *testing.T) {
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, AcademicYearPath("y1"), map[string]interface{}{"status": string(models.StatusArchived)}))
	require.NoError(t, store.Set(ctx, SemesterPath("y1", "s1"), map[string]interface{}{"status": string(models.StatusActive)}))
	require.NoError(t, store.Set(ctx, DepartmentPath("y1", "s1", "d1"), map[string]interface{}{"name": "IT"}))
	repo := NewStructureRepository(store)
	scope := []string{AcademicYearPath("y1"), SemesterPath("y1", "s1")}

	_, err := repo.Insert(ctx, InsertSpec{
		Parent:      SemesterPath("y1", "s1"),
		Collection:  DepartmentsCollection("y1", "s1"),
		ActiveScope: scope,
		Build: func(*docstore.Document) (map[string]interface{}, error) {
			return map[string]interface{}{"name": "Arts"}, nil
		},
	})
	assert.ErrorIs(t, err, ErrInactiveScope)
	assert.ErrorIs(t, repo.Rename(ctx, DepartmentPath("y1", "s1", "d1"), nil, map[string]interface{}{"name": "ICT"}, nil, scope...), ErrInactiveScope)
	assert.ErrorIs(t, repo.Delete(ctx, DepartmentPath("y1", "s1", "d1"), scope...), ErrInactiveScope)
	assert.Equal(t, 1, store.Count(DepartmentsCollection("y1", "s1")))

	require.NoError(t, store.Update(ctx, AcademicYearPath("y1"), map[string]interface{}{"status": string(models.StatusActive)}))
	require.NoError(t, repo.Delete(ctx, DepartmentPath("y1", "s1", "d1"), scope...))
	assert.Zero(t, store.Count(DepartmentsCollection("y1", "s1")))
}
