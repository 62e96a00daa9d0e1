package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/docstore"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type activeYearSource interface {
	FindActive(ctx context.Context) ([]models.AcademicYear, error)
	WatchActive(ctx context.Context) (docstore.SnapshotIterator, error)
}

type activeSemesterSource interface {
	FindActive(ctx context.Context, yearID string) ([]models.Semester, error)
	WatchActive(ctx context.Context, yearID string) (docstore.SnapshotIterator, error)
}

// SessionDirectory resolves the active academic session. It never writes.
//
// When several documents share the Active flag the first one by document id
// is used and the snapshot carries MultipleActiveYears or
// MultipleActiveSemesters so operators can repair the data.
type SessionDirectory struct {
	years     activeYearSource
	semesters activeSemesterSource
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewSessionDirectory constructs a session directory.
func NewSessionDirectory(years activeYearSource, semesters activeSemesterSource, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *SessionDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionDirectory{
		years:     years,
		semesters: semesters,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		cacheTTL:  cacheTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Current resolves the session once, going through the cache when enabled.
func (d *SessionDirectory) Current(ctx context.Context) (models.SessionSnapshot, error) {
	var cached models.SessionSnapshot
	if hit, _ := d.cache.Get(ctx, SessionCacheKey, &cached); hit {
		return cached, nil
	}

	gen := d.cache.Generation()
	start := time.Now()
	years, err := d.years.FindActive(ctx)
	if err != nil {
		return models.SessionSnapshot{}, appErrors.Unavailable(err, "failed to resolve active academic year")
	}
	var semesters []models.Semester
	if len(years) > 0 {
		semesters, err = d.semesters.FindActive(ctx, years[0].ID)
		if err != nil {
			return models.SessionSnapshot{}, appErrors.Unavailable(err, "failed to resolve active semester")
		}
	}
	d.metrics.ObserveStoreOperation("resolve_session", time.Since(start))

	snapshot := resolveSnapshot(years, semesters, d.now())
	d.reportAnomalies(nil, snapshot)
	_ = d.cache.SetIfUnchanged(ctx, SessionCacheKey, snapshot, d.cacheTTL, gen)
	return snapshot, nil
}

// Audit lists every violation of the single Active rule: extra Active years
// and extra Active semesters inside any Active year.
func (d *SessionDirectory) Audit(ctx context.Context) ([]models.SessionAnomaly, error) {
	years, err := d.years.FindActive(ctx)
	if err != nil {
		return nil, appErrors.Unavailable(err, "failed to list active academic years")
	}

	var anomalies []models.SessionAnomaly
	if len(years) > 1 {
		ids := make([]string, 0, len(years))
		for _, y := range years {
			ids = append(ids, y.ID)
		}
		anomalies = append(anomalies, models.SessionAnomaly{Kind: models.AnomalyMultipleActiveYears, Scope: "academic_years", IDs: ids})
	}
	for _, y := range years {
		semesters, err := d.semesters.FindActive(ctx, y.ID)
		if err != nil {
			return nil, appErrors.Unavailable(err, "failed to list active semesters")
		}
		if len(semesters) < 2 {
			continue
		}
		ids := make([]string, 0, len(semesters))
		for _, s := range semesters {
			ids = append(ids, s.ID)
		}
		anomalies = append(anomalies, models.SessionAnomaly{
			Kind:  models.AnomalyMultipleActiveSemesters,
			Scope: fmt.Sprintf("academic_years/%s/semesters", y.ID),
			IDs:   ids,
		})
	}
	return anomalies, nil
}

func resolveSnapshot(years []models.AcademicYear, semesters []models.Semester, now time.Time) models.SessionSnapshot {
	if len(years) == 0 {
		return models.SessionSnapshot{State: models.SessionStateNoActiveYear, ObservedAt: now}
	}
	year := years[0]
	snapshot := models.SessionSnapshot{
		State:               models.SessionStateNoActiveSemester,
		AcademicYearID:      year.ID,
		AcademicYearLabel:   year.Label,
		MultipleActiveYears: len(years) > 1,
		ObservedAt:          now,
	}
	if len(semesters) == 0 {
		return snapshot
	}
	semester := semesters[0]
	snapshot.State = models.SessionStateActive
	snapshot.SemesterID = &semester.ID
	snapshot.SemesterName = &semester.Name
	snapshot.MultipleActiveSemesters = len(semesters) > 1
	return snapshot
}

// reportAnomalies logs and counts anomalies that are new since prev.
func (d *SessionDirectory) reportAnomalies(prev *models.SessionSnapshot, next models.SessionSnapshot) {
	if next.MultipleActiveYears && (prev == nil || !prev.MultipleActiveYears) {
		d.metrics.RecordAnomaly(models.AnomalyMultipleActiveYears)
		d.logger.Warn("multiple active academic years; using the first by id",
			zap.String("academic_year_id", next.AcademicYearID))
	}
	if next.MultipleActiveSemesters && (prev == nil || !prev.MultipleActiveSemesters) {
		d.metrics.RecordAnomaly(models.AnomalyMultipleActiveSemesters)
		d.logger.Warn("multiple active semesters; using the first by id",
			zap.String("academic_year_id", next.AcademicYearID),
			zap.Stringp("semester_id", next.SemesterID))
	}
}

// SessionStream is a live view of the active session. Updates is closed once
// the stream ends; Err then reports why, or nil after Close.
type SessionStream struct {
	updates chan models.SessionSnapshot
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once

	mu  sync.Mutex
	err error
}

// Updates yields successive distinct snapshots.
func (s *SessionStream) Updates() <-chan models.SessionSnapshot {
	return s.updates
}

// Done is closed after every store watch has been released.
func (s *SessionStream) Done() <-chan struct{} {
	return s.done
}

func (s *SessionStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the stream and its nested watches. Only the first call has
// an effect; it returns after cleanup has finished.
func (s *SessionStream) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *SessionStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type watchEvent struct {
	docs []docstore.Document
	err  error
}

// pump forwards iterator snapshots until ctx ends or Next fails.
func pump(ctx context.Context, iter docstore.SnapshotIterator) <-chan watchEvent {
	out := make(chan watchEvent)
	go func() {
		defer close(out)
		for {
			snap, err := iter.Next()
			select {
			case out <- watchEvent{docs: snap.Docs, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// semesterWatch is the nested live query bound to one academic year.
type semesterWatch struct {
	yearID    string
	iter      docstore.SnapshotIterator
	cancel    context.CancelFunc
	events    <-chan watchEvent
	loaded    bool
	semesters []models.Semester
}

func (w *semesterWatch) stop() {
	if w.iter == nil {
		return
	}
	w.cancel()
	w.iter.Stop()
	*w = semesterWatch{}
}

// Observe opens a live view of the active session. The first snapshot
// reflects the current state. Cancelling ctx has the same effect as Close.
func (d *SessionDirectory) Observe(ctx context.Context) (*SessionStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	yearIter, err := d.years.WatchActive(ctx)
	if err != nil {
		cancel()
		return nil, appErrors.Unavailable(err, "failed to watch active academic year")
	}

	stream := &SessionStream{
		updates: make(chan models.SessionSnapshot),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	d.metrics.StreamOpened()
	go d.run(ctx, stream, yearIter)
	return stream, nil
}

func (d *SessionDirectory) run(ctx context.Context, stream *SessionStream, yearIter docstore.SnapshotIterator) {
	var semesters semesterWatch
	defer func() {
		yearIter.Stop()
		semesters.stop()
		close(stream.updates)
		d.metrics.StreamClosed()
		close(stream.done)
	}()

	var (
		years []models.AcademicYear
		last  *models.SessionSnapshot
	)

	emit := func() bool {
		next := resolveSnapshot(years, semesters.semesters, d.now())
		if last != nil && last.SameAs(next) {
			return true
		}
		d.reportAnomalies(last, next)
		select {
		case stream.updates <- next:
			last = &next
			return true
		case <-ctx.Done():
			return false
		}
	}

	terminate := func(err error, what string) {
		if errors.Is(err, docstore.ErrIteratorStopped) && ctx.Err() != nil {
			return
		}
		d.logger.Error("session stream ended", zap.String("watch", what), zap.Error(err))
		stream.fail(appErrors.Unavailable(err, "active session stream interrupted"))
	}

	yearEvents := pump(ctx, yearIter)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-yearEvents:
			if !ok {
				return
			}
			if ev.err != nil {
				terminate(ev.err, "academic_years")
				return
			}
			decoded, err := decodeDocuments[models.AcademicYear](ev.docs)
			if err != nil {
				terminate(err, "academic_years")
				return
			}
			years = decoded

			if len(years) == 0 {
				semesters.stop()
				if !emit() {
					return
				}
				continue
			}
			if semesters.yearID != years[0].ID {
				semesters.stop()
				semCtx, semCancel := context.WithCancel(ctx)
				iter, err := d.semesters.WatchActive(semCtx, years[0].ID)
				if err != nil {
					semCancel()
					terminate(err, "semesters")
					return
				}
				semesters = semesterWatch{
					yearID: years[0].ID,
					iter:   iter,
					cancel: semCancel,
					events: pump(semCtx, iter),
				}
				// wait for the first semester snapshot before emitting
				continue
			}
			if semesters.loaded && !emit() {
				return
			}

		case ev, ok := <-semesters.events:
			if !ok {
				semesters.events = nil
				continue
			}
			if ev.err != nil {
				terminate(ev.err, "semesters")
				return
			}
			decoded, err := decodeDocuments[models.Semester](ev.docs)
			if err != nil {
				terminate(err, "semesters")
				return
			}
			semesters.semesters = decoded
			semesters.loaded = true
			if !emit() {
				return
			}
		}
	}
}

func decodeDocuments[T any](docs []docstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := doc.DataTo(&item); err != nil {
			return nil, fmt.Errorf("decode %s: %w", doc.Path, err)
		}
		out = append(out, item)
	}
	return out, nil
}
