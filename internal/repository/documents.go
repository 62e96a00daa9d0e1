package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
)

const (
	collAcademicYears = "academic_years"
	collSemesters     = "semesters"
	collDepartments   = "departments"
	collCourses       = "courses"
	collYearLevels    = "year_levels"
	collSections      = "sections"

	fieldStatus    = "status"
	fieldUpdatedAt = "updated_at"
)

// childCollections lists the nested collections of each document kind, used
// to remove a subtree in one transaction.
var childCollections = map[string][]string{
	collAcademicYears: {collSemesters},
	collSemesters:     {collDepartments},
	collDepartments:   {collCourses},
	collCourses:       {collYearLevels},
	collYearLevels:    {collSections},
}

var (
	// ErrActiveProtected is returned when deleting a document whose status is Active.
	ErrActiveProtected = errors.New("repository: active document cannot be deleted")
	// ErrActiveMismatch is returned when the caller's view of the active document is stale.
	ErrActiveMismatch = errors.New("repository: active document changed")
	// ErrInactiveScope is returned when a write targets a year or semester that is no longer Active.
	ErrInactiveScope = errors.New("repository: session scope is not active")
)

// DuplicateError reports a sibling that already holds Field=Value.
type DuplicateError struct {
	Field string
	Value interface{}
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("repository: duplicate %s %v", e.Field, e.Value)
}

// Now is swapped in tests.
var Now = func() time.Time { return time.Now().UTC() }

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// encode converts a model into document data without its id.
func encode(v interface{}) (map[string]interface{}, error) {
	data, err := docstore.Encode(v)
	if err != nil {
		return nil, err
	}
	delete(data, "id")
	return data, nil
}

func decode[T any](doc docstore.Document) (*T, error) {
	var out T
	if err := doc.DataTo(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeAll[T any](docs []docstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, nil
}

func kindOf(collection string) string {
	for i := len(collection) - 1; i >= 0; i-- {
		if collection[i] == '/' {
			return collection[i+1:]
		}
	}
	return collection
}

// InsertSpec describes a write guarded by parent existence and sibling uniqueness.
type InsertSpec struct {
	// Parent is the document path that must exist; empty for top level collections.
	Parent     string
	Collection string
	// Unique filters are checked one by one against siblings in Collection.
	Unique []docstore.Filter
	// Build produces the document data once the parent has been read.
	Build func(parent *docstore.Document) (map[string]interface{}, error)
	// ActiveScope lists documents that must still be Active when the write commits.
	ActiveScope []string
}

// requireActive reads every path inside tx and fails with ErrInactiveScope
// unless all of them exist with status Active.
func requireActive(tx docstore.Tx, paths []string) error {
	for _, path := range paths {
		doc, err := tx.Get(path)
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrInactiveScope, path)
		}
		if err != nil {
			return err
		}
		if doc.Data[fieldStatus] != string(models.StatusActive) {
			return fmt.Errorf("%w: %s", ErrInactiveScope, path)
		}
	}
	return nil
}

// insertUnique runs the parent check, the duplicate queries and the insert in
// one transaction so concurrent creates cannot both pass the duplicate check.
func insertUnique(ctx context.Context, store docstore.Store, spec InsertSpec) (docstore.Document, error) {
	id := uuid.NewString()
	path := docstore.Join(spec.Collection, id)
	var created docstore.Document

	err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := requireActive(tx, spec.ActiveScope); err != nil {
			return err
		}
		var parent *docstore.Document
		if spec.Parent != "" {
			doc, err := tx.Get(spec.Parent)
			if err != nil {
				return err
			}
			parent = &doc
		}
		if err := checkUnique(tx, spec.Collection, spec.Unique, ""); err != nil {
			return err
		}
		data, err := spec.Build(parent)
		if err != nil {
			return err
		}
		delete(data, "id")
		if err := tx.Set(path, data); err != nil {
			return err
		}
		created = docstore.Document{Path: path, ID: id, Data: data}
		return nil
	})
	if err != nil {
		return docstore.Document{}, err
	}
	return created, nil
}

func checkUnique(tx docstore.Tx, collection string, unique []docstore.Filter, excludeID string) error {
	for _, f := range unique {
		docs, err := tx.Query(docstore.Collection(collection).Where(f.Field, f.Value))
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if doc.ID != excludeID {
				return &DuplicateError{Field: f.Field, Value: f.Value}
			}
		}
	}
	return nil
}

// updateUnique applies fields to path after checking uniqueness among its
// siblings, excluding the document itself. childFields, when set, are copied
// onto every direct child so denormalized names stay current. Documents in
// scope must be Active.
func updateUnique(ctx context.Context, store docstore.Store, path string, unique []docstore.Filter, fields, childFields map[string]interface{}, scope ...string) error {
	collection, id, err := docstore.Split(path)
	if err != nil {
		return err
	}
	return store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := requireActive(tx, scope); err != nil {
			return err
		}
		if _, err := tx.Get(path); err != nil {
			return err
		}
		if err := checkUnique(tx, collection, unique, id); err != nil {
			return err
		}
		var children []docstore.Document
		if len(childFields) > 0 {
			for _, child := range childCollections[kindOf(collection)] {
				docs, err := tx.Query(docstore.Collection(docstore.Join(path, child)))
				if err != nil {
					return err
				}
				children = append(children, docs...)
			}
		}

		now := timestamp(Now())
		fields[fieldUpdatedAt] = now
		if err := tx.Update(path, fields); err != nil {
			return err
		}
		for _, child := range children {
			update := make(map[string]interface{}, len(childFields)+1)
			for k, v := range childFields {
				update[k] = v
			}
			update[fieldUpdatedAt] = now
			if err := tx.Update(child.Path, update); err != nil {
				return err
			}
		}
		return nil
	})
}

// collectSubtree returns path and every descendant document path, parents first.
func collectSubtree(tx docstore.Tx, path string) ([]string, error) {
	collection, _, err := docstore.Split(path)
	if err != nil {
		return nil, err
	}
	paths := []string{path}
	for _, child := range childCollections[kindOf(collection)] {
		docs, err := tx.Query(docstore.Collection(docstore.Join(path, child)))
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			nested, err := collectSubtree(tx, doc.Path)
			if err != nil {
				return nil, err
			}
			paths = append(paths, nested...)
		}
	}
	return paths, nil
}

// deleteTree removes path and its descendants atomically. When guardActive is
// set the delete is refused if the document is Active. Documents in scope
// must be Active.
func deleteTree(ctx context.Context, store docstore.Store, path string, guardActive bool, scope ...string) error {
	return store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := requireActive(tx, scope); err != nil {
			return err
		}
		doc, err := tx.Get(path)
		if err != nil {
			return err
		}
		if guardActive && doc.Data[fieldStatus] == string(models.StatusActive) {
			return ErrActiveProtected
		}
		paths, err := collectSubtree(tx, path)
		if err != nil {
			return err
		}
		for i := len(paths) - 1; i >= 0; i-- {
			if err := tx.Delete(paths[i]); err != nil {
				return err
			}
		}
		return nil
	})
}
