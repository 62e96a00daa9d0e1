package repository

import (
	"context"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
)

// ActivationOutcome reports what an activation changed.
type ActivationOutcome struct {
	ArchivedIDs []string
	// Changed is false when the target was already the only Active document.
	Changed bool
}

// StatusRepository owns every write of the status field of academic years
// and semesters.
type StatusRepository struct {
	store docstore.Store
}

// NewStatusRepository instantiates a status repository.
func NewStatusRepository(store docstore.Store) *StatusRepository {
	return &StatusRepository{store: store}
}

// ActivateAcademicYear makes yearID the only Active year.
func (r *StatusRepository) ActivateAcademicYear(ctx context.Context, yearID string, expected *string) (ActivationOutcome, error) {
	return r.activate(ctx, collAcademicYears, yearID, expected)
}

// ActivateSemester makes semesterID the only Active semester of yearID.
func (r *StatusRepository) ActivateSemester(ctx context.Context, yearID, semesterID string, expected *string) (ActivationOutcome, error) {
	return r.activate(ctx, SemestersCollection(yearID), semesterID, expected)
}

// activate archives every other Active sibling and activates the target in a
// single transaction. When expected is non-nil the set of Active siblings
// must be exactly {*expected} (or empty for "") or ErrActiveMismatch is
// returned without writing.
func (r *StatusRepository) activate(ctx context.Context, collection, targetID string, expected *string) (ActivationOutcome, error) {
	var outcome ActivationOutcome
	targetPath := docstore.Join(collection, targetID)

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		outcome = ActivationOutcome{}

		target, err := tx.Get(targetPath)
		if err != nil {
			return err
		}
		active, err := tx.Query(activeQuery(collection))
		if err != nil {
			return err
		}
		if expected != nil && !matchesExpected(active, *expected) {
			return ErrActiveMismatch
		}

		targetActive := target.Data[fieldStatus] == string(models.StatusActive)
		if targetActive && len(active) == 1 {
			return nil
		}

		now := timestamp(Now())
		for _, doc := range active {
			if doc.ID == targetID {
				continue
			}
			if err := tx.Update(doc.Path, map[string]interface{}{
				fieldStatus:    string(models.StatusArchived),
				fieldUpdatedAt: now,
			}); err != nil {
				return err
			}
			outcome.ArchivedIDs = append(outcome.ArchivedIDs, doc.ID)
		}
		if !targetActive {
			if err := tx.Update(targetPath, map[string]interface{}{
				fieldStatus:    string(models.StatusActive),
				fieldUpdatedAt: now,
			}); err != nil {
				return err
			}
		}
		outcome.Changed = true
		return nil
	})
	if err != nil {
		return ActivationOutcome{}, err
	}
	return outcome, nil
}

func matchesExpected(active []docstore.Document, expected string) bool {
	if expected == "" {
		return len(active) == 0
	}
	return len(active) == 1 && active[0].ID == expected
}

// DeleteAcademicYear removes a non-Active year with its semesters and their
// structure. ErrActiveProtected is returned for the Active year.
func (r *StatusRepository) DeleteAcademicYear(ctx context.Context, yearID string) error {
	return deleteTree(ctx, r.store, AcademicYearPath(yearID), true)
}

// DeleteSemester removes a non-Active semester and its structure.
func (r *StatusRepository) DeleteSemester(ctx context.Context, yearID, semesterID string) error {
	return deleteTree(ctx, r.store, SemesterPath(yearID, semesterID), true)
}
