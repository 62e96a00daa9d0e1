package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var errReadAfterWrite = errors.New("docstore: transaction reads must happen before writes")

// MemoryStore keeps documents in process. Transactions are serialized and
// staged on a private copy, so a failed commit leaves every document untouched.
// It backs local development and tests.
type MemoryStore struct {
	txMu sync.Mutex

	mu         sync.RWMutex
	docs       map[string]Document
	commitErr  error
	commitHook func(paths []string)
	closed     bool

	watches *watchRegistry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]Document),
		watches: newWatchRegistry(),
	}
}

// FailCommits makes every write fail with err until called again with nil.
func (s *MemoryStore) FailCommits(err error) {
	s.mu.Lock()
	s.commitErr = err
	s.mu.Unlock()
}

// OnCommit registers a hook invoked with the written paths after every commit.
func (s *MemoryStore) OnCommit(hook func(paths []string)) {
	s.mu.Lock()
	s.commitHook = hook
	s.mu.Unlock()
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(path)
}

func (s *MemoryStore) getLocked(path string) (Document, error) {
	doc, ok := s.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Path: doc.Path, ID: doc.ID, Data: cloneData(doc.Data)}, nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidCollection(q.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(q), nil
}

func (s *MemoryStore) queryLocked(q Query) []Document {
	result := make([]Document, 0)
	for _, doc := range s.docs {
		collection, _, err := Split(doc.Path)
		if err != nil || collection != q.Collection {
			continue
		}
		if !q.Matches(doc) {
			continue
		}
		result = append(result, Document{Path: doc.Path, ID: doc.ID, Data: cloneData(doc.Data)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, collection string, data map[string]interface{}) (Document, error) {
	if !ValidCollection(collection) {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidPath, collection)
	}
	path := Join(collection, uuid.NewString())
	if err := s.Set(ctx, path, data); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(path)
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, path string, data map[string]interface{}) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(path, data)
	})
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(path, fields)
	})
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(path)
	})
}

// RunTransaction implements Store.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, staged: make(map[string]*Document)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("docstore: store closed")
	}
	if s.commitErr != nil {
		err := s.commitErr
		s.mu.Unlock()
		return err
	}
	affected := make(map[string]struct{})
	for _, path := range tx.order {
		doc := tx.staged[path]
		if doc == nil {
			delete(s.docs, path)
		} else {
			s.docs[path] = *doc
		}
		if collection, _, err := Split(path); err == nil {
			affected[collection] = struct{}{}
		}
	}
	hook := s.commitHook
	s.mu.Unlock()

	for collection := range affected {
		s.watches.notify(collection)
	}
	if hook != nil {
		hook(append([]string(nil), tx.order...))
	}
	return nil
}

// Watch implements Store.
func (s *MemoryStore) Watch(ctx context.Context, q Query) (SnapshotIterator, error) {
	if !ValidCollection(q.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	var w *notifyWatch
	w = newNotifyWatch(ctx, func(ctx context.Context) ([]Document, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.queryLocked(q), nil
	}, func() { s.watches.remove(w) })
	s.watches.add(q.Collection, w)
	return w, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.watches.stopAll()
	return nil
}

// Count returns the number of documents directly inside collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queryLocked(Query{Collection: collection}))
}

type memoryTx struct {
	store  *MemoryStore
	staged map[string]*Document
	order  []string
}

func (t *memoryTx) Get(path string) (Document, error) {
	if len(t.order) > 0 {
		return Document{}, errReadAfterWrite
	}
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.getLocked(path)
}

func (t *memoryTx) Query(q Query) ([]Document, error) {
	if len(t.order) > 0 {
		return nil, errReadAfterWrite
	}
	if !ValidCollection(q.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.queryLocked(q), nil
}

func (t *memoryTx) current(path string) (*Document, bool) {
	if doc, ok := t.staged[path]; ok {
		return doc, doc != nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	doc, ok := t.store.docs[path]
	if !ok {
		return nil, false
	}
	return &Document{Path: doc.Path, ID: doc.ID, Data: cloneData(doc.Data)}, true
}

func (t *memoryTx) stage(path string, doc *Document) {
	if _, ok := t.staged[path]; !ok {
		t.order = append(t.order, path)
	}
	t.staged[path] = doc
}

func (t *memoryTx) Set(path string, data map[string]interface{}) error {
	_, id, err := Split(path)
	if err != nil {
		return err
	}
	normalized, err := normalize(data)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	t.stage(path, &Document{Path: path, ID: id, Data: normalized})
	return nil
}

func (t *memoryTx) Update(path string, fields map[string]interface{}) error {
	if _, _, err := Split(path); err != nil {
		return err
	}
	doc, ok := t.current(path)
	if !ok {
		return ErrNotFound
	}
	normalized, err := normalize(fields)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	merged := cloneData(doc.Data)
	for k, v := range normalized {
		merged[k] = v
	}
	t.stage(path, &Document{Path: doc.Path, ID: doc.ID, Data: merged})
	return nil
}

func (t *memoryTx) Delete(path string) error {
	if _, _, err := Split(path); err != nil {
		return err
	}
	t.stage(path, nil)
	return nil
}
