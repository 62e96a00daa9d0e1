package docstore

import (
	"context"
	"sync"
	"time"
)

// notifyWatch re-runs its load function whenever the backend signals that the
// watched collection changed. Signals arriving while a load is in flight are
// coalesced into a single follow-up snapshot. Once the backend reports that
// its change feed broke, Next returns that error instead of blocking.
type notifyWatch struct {
	ctx     context.Context
	cancel  context.CancelFunc
	load    func(ctx context.Context) ([]Document, error)
	onStop  func()
	changed chan struct{}
	started bool
	once    sync.Once

	failOnce sync.Once
	failed   chan struct{}
	err      error
}

func newNotifyWatch(ctx context.Context, load func(ctx context.Context) ([]Document, error), onStop func()) *notifyWatch {
	wctx, cancel := context.WithCancel(ctx)
	return &notifyWatch{
		ctx:     wctx,
		cancel:  cancel,
		load:    load,
		onStop:  onStop,
		changed: make(chan struct{}, 1),
		failed:  make(chan struct{}),
	}
}

func (w *notifyWatch) signal() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// fail ends the watch with err. Only the first call has an effect.
func (w *notifyWatch) fail(err error) {
	w.failOnce.Do(func() {
		w.err = err
		close(w.failed)
	})
}

// Next implements SnapshotIterator.
func (w *notifyWatch) Next() (Snapshot, error) {
	if w.started {
		select {
		case <-w.ctx.Done():
			return Snapshot{}, ErrIteratorStopped
		case <-w.failed:
			return Snapshot{}, w.err
		case <-w.changed:
		}
	}
	select {
	case <-w.failed:
		return Snapshot{}, w.err
	default:
	}
	if w.ctx.Err() != nil {
		return Snapshot{}, ErrIteratorStopped
	}
	w.started = true
	docs, err := w.load(w.ctx)
	if err != nil {
		if w.ctx.Err() != nil {
			return Snapshot{}, ErrIteratorStopped
		}
		return Snapshot{}, err
	}
	return Snapshot{Docs: docs, ReadAt: time.Now().UTC()}, nil
}

// Stop implements SnapshotIterator.
func (w *notifyWatch) Stop() {
	w.once.Do(func() {
		w.cancel()
		if w.onStop != nil {
			w.onStop()
		}
	})
}

// watchRegistry tracks live watches by collection for backends that learn
// about changes out of band (commit hooks, LISTEN/NOTIFY, change streams).
type watchRegistry struct {
	mu      sync.Mutex
	watches map[*notifyWatch]string
}

func newWatchRegistry() *watchRegistry {
	return &watchRegistry{watches: make(map[*notifyWatch]string)}
}

func (r *watchRegistry) add(collection string, w *notifyWatch) {
	r.mu.Lock()
	r.watches[w] = collection
	r.mu.Unlock()
}

func (r *watchRegistry) remove(w *notifyWatch) {
	r.mu.Lock()
	delete(r.watches, w)
	r.mu.Unlock()
}

// notify signals watches of the given collection; an empty collection
// signals every watch.
func (r *watchRegistry) notify(collection string) {
	r.mu.Lock()
	targets := make([]*notifyWatch, 0, len(r.watches))
	for w, c := range r.watches {
		if collection == "" || c == collection {
			targets = append(targets, w)
		}
	}
	r.mu.Unlock()
	for _, w := range targets {
		w.signal()
	}
}

func (r *watchRegistry) stopAll() {
	r.mu.Lock()
	targets := make([]*notifyWatch, 0, len(r.watches))
	for w := range r.watches {
		targets = append(targets, w)
	}
	r.mu.Unlock()
	for _, w := range targets {
		w.Stop()
	}
}
