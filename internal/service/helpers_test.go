package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

// memoryEnv wires the real repositories over an in-memory store.
type memoryEnv struct {
	store     *docstore.MemoryStore
	years     *repository.AcademicYearRepository
	semesters *repository.SemesterRepository
	status    *repository.StatusRepository
	structure *repository.StructureRepository
}

func newMemoryEnv(t *testing.T) *memoryEnv {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	return &memoryEnv{
		store:     store,
		years:     repository.NewAcademicYearRepository(store),
		semesters: repository.NewSemesterRepository(store),
		status:    repository.NewStatusRepository(store),
		structure: repository.NewStructureRepository(store),
	}
}

func (e *memoryEnv) seedYear(t *testing.T, id, label string, status models.SessionStatus) {
	t.Helper()
	require.NoError(t, e.store.Set(context.Background(), repository.AcademicYearPath(id), map[string]interface{}{
		"label":      label,
		"status":     string(status),
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": "2024-01-01T00:00:00Z",
	}))
}

func (e *memoryEnv) seedSemester(t *testing.T, yearID, id, name string, status models.SessionStatus) {
	t.Helper()
	require.NoError(t, e.store.Set(context.Background(), repository.SemesterPath(yearID, id), map[string]interface{}{
		"academic_year_id": yearID,
		"name":             name,
		"status":           string(status),
		"start_date":       "2024-08-01T00:00:00Z",
		"end_date":         "2024-12-20T00:00:00Z",
	}))
}

func (e *memoryEnv) yearStatus(t *testing.T, id string) models.SessionStatus {
	t.Helper()
	year, err := e.years.FindByID(context.Background(), id)
	require.NoError(t, err)
	return year.Status
}

func (e *memoryEnv) semesterStatus(t *testing.T, yearID, id string) models.SessionStatus {
	t.Helper()
	semester, err := e.semesters.FindByID(context.Background(), yearID, id)
	require.NoError(t, err)
	return semester.Status
}

func (e *memoryEnv) directory(cache *CacheService, metrics *MetricsService) *SessionDirectory {
	return NewSessionDirectory(e.years, e.semesters, cache, metrics, time.Minute, nil)
}

func (e *memoryEnv) activation(metrics *MetricsService, invalidator *SessionInvalidator) *SessionActivationService {
	return NewSessionActivationService(e.status, nil, metrics, invalidator, nil)
}

// stubCacheRepo is an in-memory CacheRepository.
type stubCacheRepo struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
	getErr  error
	delErr  error
}

func newStubCacheRepo() *stubCacheRepo {
	return &stubCacheRepo{data: make(map[string][]byte)}
}

func (r *stubCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *stubCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data[key] = raw
	r.mu.Unlock()
	return nil
}

func (r *stubCacheRepo) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delErr != nil {
		return r.delErr
	}
	for _, key := range keys {
		delete(r.data, key)
		r.deleted = append(r.deleted, key)
	}
	return nil
}

func (r *stubCacheRepo) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[key]
	return ok
}

func (r *stubCacheRepo) deletedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

func nextSnapshot(t *testing.T, stream *SessionStream) models.SessionSnapshot {
	t.Helper()
	select {
	case snap, ok := <-stream.Updates():
		require.True(t, ok, "stream closed: %v", stream.Err())
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session snapshot")
	}
	return models.SessionSnapshot{}
}

func requireCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want.Code, appErrors.FromError(err).Code, err.Error())
}
