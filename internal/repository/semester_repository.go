package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
)

// SemesterRepository handles persistence for the semesters of a year.
type SemesterRepository struct {
	store docstore.Store
}

// NewSemesterRepository instantiates a semester repository.
func NewSemesterRepository(store docstore.Store) *SemesterRepository {
	return &SemesterRepository{store: store}
}

// List returns the semesters of yearID.
func (r *SemesterRepository) List(ctx context.Context, yearID string) ([]models.Semester, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(SemestersCollection(yearID)))
	if err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return decodeAll[models.Semester](docs)
}

func (r *SemesterRepository) FindByID(ctx context.Context, yearID, semesterID string) (*models.Semester, error) {
	doc, err := r.store.Get(ctx, SemesterPath(yearID, semesterID))
	if err != nil {
		return nil, err
	}
	return decode[models.Semester](doc)
}

// FindActive returns every Active semester of yearID, ordered by id.
func (r *SemesterRepository) FindActive(ctx context.Context, yearID string) ([]models.Semester, error) {
	docs, err := r.store.Query(ctx, activeQuery(SemestersCollection(yearID)))
	if err != nil {
		return nil, fmt.Errorf("find active semesters: %w", err)
	}
	return decodeAll[models.Semester](docs)
}

// WatchActive opens a live query over the Active semesters of yearID.
func (r *SemesterRepository) WatchActive(ctx context.Context, yearID string) (docstore.SnapshotIterator, error) {
	return r.store.Watch(ctx, activeQuery(SemestersCollection(yearID)))
}

// Create inserts a semester under its year, rejecting a duplicate name.
func (r *SemesterRepository) Create(ctx context.Context, semester *models.Semester) error {
	now := Now()
	if semester.CreatedAt.IsZero() {
		semester.CreatedAt = now
	}
	semester.UpdatedAt = now

	doc, err := insertUnique(ctx, r.store, InsertSpec{
		Parent:     AcademicYearPath(semester.AcademicYearID),
		Collection: SemestersCollection(semester.AcademicYearID),
		Unique:     []docstore.Filter{{Field: "name", Value: semester.Name}},
		Build: func(*docstore.Document) (map[string]interface{}, error) {
			return encode(semester)
		},
	})
	if err != nil {
		return err
	}
	semester.ID = doc.ID
	return nil
}

// Update writes name and dates. The status field is left untouched.
func (r *SemesterRepository) Update(ctx context.Context, semester *models.Semester) error {
	return updateUnique(ctx, r.store, SemesterPath(semester.AcademicYearID, semester.ID),
		[]docstore.Filter{{Field: "name", Value: semester.Name}},
		map[string]interface{}{
			"name":       semester.Name,
			"start_date": timestamp(semester.StartDate),
			"end_date":   timestamp(semester.EndDate),
		},
		nil,
	)
}
