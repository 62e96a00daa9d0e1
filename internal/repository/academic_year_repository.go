package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
)

// AcademicYearRepository handles persistence for academic years. It never
// writes the status field except on creation; status changes go through
// StatusRepository.
type AcademicYearRepository struct {
	store docstore.Store
}

// NewAcademicYearRepository instantiates an academic year repository.
func NewAcademicYearRepository(store docstore.Store) *AcademicYearRepository {
	return &AcademicYearRepository{store: store}
}

// List returns every academic year ordered by id.
func (r *AcademicYearRepository) List(ctx context.Context) ([]models.AcademicYear, error) {
	docs, err := r.store.Query(ctx, docstore.Collection(collAcademicYears))
	if err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return decodeAll[models.AcademicYear](docs)
}

// FindByID loads a year; docstore.ErrNotFound is returned unwrapped.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	doc, err := r.store.Get(ctx, AcademicYearPath(id))
	if err != nil {
		return nil, err
	}
	return decode[models.AcademicYear](doc)
}

// FindActive returns every year flagged Active, ordered by id.
func (r *AcademicYearRepository) FindActive(ctx context.Context) ([]models.AcademicYear, error) {
	docs, err := r.store.Query(ctx, activeQuery(collAcademicYears))
	if err != nil {
		return nil, fmt.Errorf("find active academic years: %w", err)
	}
	return decodeAll[models.AcademicYear](docs)
}

// WatchActive opens a live query over the Active years.
func (r *AcademicYearRepository) WatchActive(ctx context.Context) (docstore.SnapshotIterator, error) {
	return r.store.Watch(ctx, activeQuery(collAcademicYears))
}

// Create inserts a new year, rejecting a duplicate label.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	now := Now()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	doc, err := insertUnique(ctx, r.store, InsertSpec{
		Collection: collAcademicYears,
		Unique:     []docstore.Filter{{Field: "label", Value: year.Label}},
		Build: func(*docstore.Document) (map[string]interface{}, error) {
			return encode(year)
		},
	})
	if err != nil {
		return err
	}
	year.ID = doc.ID
	return nil
}

// UpdateLabel relabels a year, rejecting a label held by another year.
func (r *AcademicYearRepository) UpdateLabel(ctx context.Context, id, label string) error {
	return updateUnique(ctx, r.store, AcademicYearPath(id),
		[]docstore.Filter{{Field: "label", Value: label}},
		map[string]interface{}{"label": label},
		nil,
	)
}

func activeQuery(collection string) docstore.Query {
	return docstore.Collection(collection).Where(fieldStatus, string(models.StatusActive))
}
