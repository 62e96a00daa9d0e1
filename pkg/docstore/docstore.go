// Package docstore is a small hierarchical document store abstraction.
//
// Documents live in collections addressed by slash separated paths
// ("academic_years/{id}/semesters"). A document path is its collection path
// followed by the document id. Backends provide equality queries ordered by
// document id, read-then-write transactions that commit atomically, and live
// queries that push a fresh snapshot whenever the result set may have changed.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrIteratorStopped is returned by SnapshotIterator.Next after Stop or context cancellation.
	ErrIteratorStopped = errors.New("docstore: iterator stopped")
	// ErrInvalidPath is returned for paths with the wrong number of segments.
	ErrInvalidPath = errors.New("docstore: invalid path")
)

// Document is a stored document. Data holds the JSON-compatible field values.
type Document struct {
	Path string
	ID   string
	Data map[string]interface{}
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value interface{}
}

// Query selects documents of a single collection.
type Query struct {
	Collection string
	Filters    []Filter
	Limit      int
}

// Where returns a copy of q with an extra equality filter.
func (q Query) Where(field string, value interface{}) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Value: value})
	return q
}

// Collection starts a query over the given collection path.
func Collection(path string) Query {
	return Query{Collection: path}
}

// Snapshot is one delivery of a live query.
type Snapshot struct {
	Docs   []Document
	ReadAt time.Time
}

// SnapshotIterator delivers successive snapshots of a live query. The first
// call to Next returns the current result set. Stop is safe to call more than
// once and from any goroutine.
type SnapshotIterator interface {
	Next() (Snapshot, error)
	Stop()
}

// Tx is the view of the store inside RunTransaction. Reads must happen before
// writes; writes become visible only when the transaction function returns nil.
type Tx interface {
	Get(path string) (Document, error)
	Query(q Query) ([]Document, error)
	Set(path string, data map[string]interface{}) error
	Update(path string, fields map[string]interface{}) error
	Delete(path string) error
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Create(ctx context.Context, collection string, data map[string]interface{}) (Document, error)
	Set(ctx context.Context, path string, data map[string]interface{}) error
	Update(ctx context.Context, path string, fields map[string]interface{}) error
	Delete(ctx context.Context, path string) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Watch(ctx context.Context, q Query) (SnapshotIterator, error)
	Close() error
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the collection path and id of a document path.
func Split(path string) (collection, id string, err error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return strings.Join(segments[:len(segments)-1], "/"), segments[len(segments)-1], nil
}

// ValidCollection reports whether path addresses a collection (odd segment count).
func ValidCollection(path string) bool {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments)%2 != 1 {
		return false
	}
	for _, s := range segments {
		if s == "" {
			return false
		}
	}
	return true
}

// Encode converts a struct with json tags into document data.
func Encode(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	data := map[string]interface{}{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// DataTo decodes document data into dest, which must be a pointer to a struct
// with json tags. Field "id" is populated from the document id.
func (d Document) DataTo(dest interface{}) error {
	data := make(map[string]interface{}, len(d.Data)+1)
	for k, v := range d.Data {
		data[k] = v
	}
	data["id"] = d.ID
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("decode document %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode document %s: %w", d.Path, err)
	}
	return nil
}

// Matches reports whether doc satisfies every filter of q. Values are compared
// through their JSON form so that numbers and times match across backends.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Filters {
		actual, ok := doc.Data[f.Field]
		if !ok {
			return false
		}
		if !jsonEqual(actual, f.Value) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b interface{}) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}

func cloneData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// normalize round-trips data through JSON so every backend hands out the same
// value shapes (float64 numbers, RFC3339 strings for times).
func normalize(data map[string]interface{}) (map[string]interface{}, error) {
	if data == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
