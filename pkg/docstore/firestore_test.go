package docstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestTranslateFirestoreError(t *testing.T) {
	assert.NoError(t, translateFirestoreError(nil))
	assert.ErrorIs(t, translateFirestoreError(status.Error(codes.NotFound, "no document")), ErrNotFound)
	assert.ErrorIs(t, translateFirestoreError(ErrNotFound), ErrNotFound)

	aborted := status.Error(codes.Aborted, "too much contention")
	err := translateFirestoreError(aborted)
	assert.ErrorIs(t, err, aborted)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "firestore")
	assert.Equal(t, codes.Aborted, status.Code(errors.Unwrap(err)))
}

func TestFirestoreUpdates(t *testing.T) {
	updates := firestoreUpdates(map[string]interface{}{"status": "Archived", "label": "2024-2025"})
	assert.ElementsMatch(t, []firestore.Update{
		{Path: "status", Value: "Archived"},
		{Path: "label", Value: "2024-2025"},
	}, updates)

	assert.Empty(t, firestoreUpdates(nil))
}

func newEmulatorStore(t *testing.T) (*FirestoreStore, string) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "demo-docstore")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewFirestoreStore(client), "years_" + uuid.NewString()[:8]
}

func TestFirestoreStoreAgainstEmulator(t *testing.T) {
	store, collection := newEmulatorStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, store.Set(ctx, Join(collection, "b"), map[string]interface{}{"label": "2024-2025", "status": "Upcoming"}))
	require.NoError(t, store.Set(ctx, Join(collection, "a"), map[string]interface{}{"label": "2023-2024", "status": "Active"}))

	doc, err := store.Get(ctx, Join(collection, "a"))
	require.NoError(t, err)
	assert.Equal(t, "2023-2024", doc.Data["label"])

	_, err = store.Get(ctx, Join(collection, "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, Join(collection, "missing"), map[string]interface{}{"status": "Active"}), ErrNotFound)

	err = store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		active, err := tx.Query(Collection(collection).Where("status", "Active"))
		if err != nil {
			return err
		}
		for _, d := range active {
			if err := tx.Update(d.Path, map[string]interface{}{"status": "Archived"}); err != nil {
				return err
			}
		}
		return tx.Update(Join(collection, "b"), map[string]interface{}{"status": "Active"})
	})
	require.NoError(t, err)

	docs, err := store.Query(ctx, Collection(collection))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "Archived", docs[0].Data["status"])
	assert.Equal(t, "b", docs[1].ID)
	assert.Equal(t, "Active", docs[1].Data["status"])

	sentinel := errors.New("abort")
	err = store.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Update(Join(collection, "a"), map[string]interface{}{"status": "Active"}); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	doc, err = store.Get(ctx, Join(collection, "a"))
	require.NoError(t, err)
	assert.Equal(t, "Archived", doc.Data["status"])
}
