package docstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/pkg/config"
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	"github.com/noah-isme/sma-attendance-api/pkg/firebase"
)

// Open connects the backend selected by cfg.Store.Driver. The returned
// cleanup closes the store and the underlying client.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store.Driver {
	case config.StoreMemory:
		store := NewMemoryStore()
		return store, func() { _ = store.Close() }, nil

	case config.StoreFirestore:
		app, err := firebase.NewApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, nil, err
		}
		client, err := firebase.Firestore(ctx, app)
		if err != nil {
			return nil, nil, err
		}
		store := NewFirestoreStore(client)
		return store, func() { _ = store.Close() }, nil

	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := NewPostgresStore(db, cfg.Database.DSN(), logger)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() {
			_ = store.Close()
			_ = db.Close()
		}, nil

	case config.StoreMongo:
		client, db, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		store := NewMongoStore(client, db, logger)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() {
			_ = store.Close()
			_ = client.Disconnect(context.Background())
		}, nil
	}
	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}
