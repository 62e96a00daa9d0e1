package docstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingWatch(t *testing.T) (*notifyWatch, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var loads, stops atomic.Int32
	w := newNotifyWatch(context.Background(), func(ctx context.Context) ([]Document, error) {
		loads.Add(1)
		return []Document{{Path: "academic_years/y1", ID: "y1"}}, nil
	}, func() { stops.Add(1) })
	t.Cleanup(w.Stop)
	return w, &loads, &stops
}

func nextWithin(t *testing.T, w *notifyWatch, d time.Duration) (Snapshot, error) {
	t.Helper()
	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := w.Next()
		done <- result{snap, err}
	}()
	select {
	case r := <-done:
		return r.snap, r.err
	case <-time.After(d):
		t.Fatal("Next did not return")
		return Snapshot{}, nil
	}
}

func TestNotifyWatchFailureUnblocksNext(t *testing.T) {
	w, loads, _ := countingWatch(t)

	snap, err := w.Next()
	require.NoError(t, err)
	assert.Len(t, snap.Docs, 1)

	streamErr := errors.New("change stream ended")
	go func() {
		time.Sleep(20 * time.Millisecond)
		w.fail(streamErr)
	}()

	_, err = nextWithin(t, w, time.Second)
	assert.ErrorIs(t, err, streamErr)

	_, err = nextWithin(t, w, 100*time.Millisecond)
	assert.ErrorIs(t, err, streamErr)
	assert.Equal(t, int32(1), loads.Load())
}

func TestNotifyWatchFailureWinsOverPendingSignal(t *testing.T) {
	w, loads, _ := countingWatch(t)

	_, err := w.Next()
	require.NoError(t, err)

	w.signal()
	w.fail(errors.New("first"))
	w.fail(errors.New("second"))

	for i := 0; i < 2; i++ {
		_, err = nextWithin(t, w, 100*time.Millisecond)
		require.Error(t, err)
		assert.Equal(t, "first", err.Error())
	}
	assert.Equal(t, int32(1), loads.Load())
}

func TestNotifyWatchSignalAndStop(t *testing.T) {
	w, loads, stops := countingWatch(t)

	_, err := w.Next()
	require.NoError(t, err)
	w.signal()
	w.signal()
	_, err = nextWithin(t, w, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())

	w.Stop()
	w.Stop()
	assert.Equal(t, int32(1), stops.Load())
	_, err = nextWithin(t, w, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrIteratorStopped)
}
