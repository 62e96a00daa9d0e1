package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore adapts a Cloud Firestore client. Collection and document
// paths map one-to-one onto Firestore paths.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an initialised Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) doc(path string) (*firestore.DocumentRef, error) {
	if _, _, err := Split(path); err != nil {
		return nil, err
	}
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return ref, nil
}

func (s *FirestoreStore) query(q Query) (firestore.Query, error) {
	if !ValidCollection(q.Collection) {
		return firestore.Query{}, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	col := s.client.Collection(q.Collection)
	if col == nil {
		return firestore.Query{}, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	fq := col.Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, "==", f.Value)
	}
	fq = fq.OrderBy(firestore.DocumentID, firestore.Asc)
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq, nil
}

// Get implements Store.
func (s *FirestoreStore) Get(ctx context.Context, path string) (Document, error) {
	ref, err := s.doc(path)
	if err != nil {
		return Document{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document{}, translateFirestoreError(err)
	}
	return firestoreDocument(path, snap)
}

// Query implements Store.
func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]Document, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}
	iter := fq.Documents(ctx)
	defer iter.Stop()
	return collectFirestore(q.Collection, iter)
}

// Create implements Store.
func (s *FirestoreStore) Create(ctx context.Context, collection string, data map[string]interface{}) (Document, error) {
	if !ValidCollection(collection) {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidPath, collection)
	}
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, data); err != nil {
		return Document{}, translateFirestoreError(err)
	}
	normalized, err := normalize(data)
	if err != nil {
		return Document{}, err
	}
	return Document{Path: Join(collection, ref.ID), ID: ref.ID, Data: normalized}, nil
}

// Set implements Store.
func (s *FirestoreStore) Set(ctx context.Context, path string, data map[string]interface{}) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return translateFirestoreError(err)
	}
	return nil
}

// Update implements Store.
func (s *FirestoreStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, firestoreUpdates(fields)); err != nil {
		return translateFirestoreError(err)
	}
	return nil
}

// Delete implements Store.
func (s *FirestoreStore) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return translateFirestoreError(err)
	}
	return nil
}

// RunTransaction implements Store. Firestore may invoke fn more than once on
// contention, so fn must not have side effects outside tx.
func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var fnErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, ftx *firestore.Transaction) error {
		fnErr = fn(ctx, &firestoreTx{store: s, tx: ftx})
		return fnErr
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return fnErr
		}
		return translateFirestoreError(err)
	}
	return nil
}

// Watch implements Store using Firestore query snapshot listeners.
func (s *FirestoreStore) Watch(ctx context.Context, q Query) (SnapshotIterator, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}
	return &firestoreWatch{collection: q.Collection, iter: fq.Snapshots(ctx), ctx: ctx}, nil
}

// Close implements Store.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreTx struct {
	store *FirestoreStore
	tx    *firestore.Transaction
}

func (t *firestoreTx) Get(path string) (Document, error) {
	ref, err := t.store.doc(path)
	if err != nil {
		return Document{}, err
	}
	snap, err := t.tx.Get(ref)
	if err != nil {
		return Document{}, translateFirestoreError(err)
	}
	return firestoreDocument(path, snap)
}

func (t *firestoreTx) Query(q Query) ([]Document, error) {
	fq, err := t.store.query(q)
	if err != nil {
		return nil, err
	}
	iter := t.tx.Documents(fq)
	defer iter.Stop()
	return collectFirestore(q.Collection, iter)
}

func (t *firestoreTx) Set(path string, data map[string]interface{}) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	return t.tx.Set(ref, data)
}

func (t *firestoreTx) Update(path string, fields map[string]interface{}) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	return t.tx.Update(ref, firestoreUpdates(fields))
}

func (t *firestoreTx) Delete(path string) error {
	ref, err := t.store.doc(path)
	if err != nil {
		return err
	}
	return t.tx.Delete(ref)
}

type firestoreWatch struct {
	collection string
	iter       *firestore.QuerySnapshotIterator
	ctx        context.Context
	once       sync.Once
	stopped    bool
	mu         sync.Mutex
}

func (w *firestoreWatch) Next() (Snapshot, error) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped || w.ctx.Err() != nil {
		return Snapshot{}, ErrIteratorStopped
	}
	qs, err := w.iter.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled || w.ctx.Err() != nil {
			return Snapshot{}, ErrIteratorStopped
		}
		return Snapshot{}, translateFirestoreError(err)
	}
	docs, err := collectFirestore(w.collection, qs.Documents)
	if err != nil {
		return Snapshot{}, err
	}
	readAt := qs.ReadTime
	if readAt.IsZero() {
		readAt = time.Now().UTC()
	}
	return Snapshot{Docs: docs, ReadAt: readAt}, nil
}

func (w *firestoreWatch) Stop() {
	w.once.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
		w.iter.Stop()
	})
}

func collectFirestore(collection string, iter *firestore.DocumentIterator) ([]Document, error) {
	docs := make([]Document, 0)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, translateFirestoreError(err)
		}
		doc, err := firestoreDocument(Join(collection, snap.Ref.ID), snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func firestoreDocument(path string, snap *firestore.DocumentSnapshot) (Document, error) {
	data, err := normalize(snap.Data())
	if err != nil {
		return Document{}, fmt.Errorf("decode firestore document %s: %w", path, err)
	}
	return Document{Path: path, ID: snap.Ref.ID, Data: data}, nil
}

func firestoreUpdates(fields map[string]interface{}) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	return updates
}

func translateFirestoreError(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("firestore: %w", err)
}
