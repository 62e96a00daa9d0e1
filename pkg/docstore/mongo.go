package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	mongoDocumentsCollection = "documents"
	mongoLocksCollection     = "document_locks"
)

type mongoDocument struct {
	Path       string                 `bson:"_id"`
	Collection string                 `bson:"collection"`
	ID         string                 `bson:"id"`
	Data       map[string]interface{} `bson:"data"`
	CreatedAt  time.Time              `bson:"created_at"`
	UpdatedAt  time.Time              `bson:"updated_at"`
}

// MongoStore keeps documents in a single "documents" collection keyed by path.
// Transactions need a replica set; every collection queried inside one bumps
// a lock document so that concurrent read-then-write sequences conflict and
// are retried by the driver. Live queries use change streams.
type MongoStore struct {
	client *mongo.Client
	docs   *mongo.Collection
	locks  *mongo.Collection
	logger *zap.Logger

	watches *watchRegistry
}

// NewMongoStore binds the store to db.
func NewMongoStore(client *mongo.Client, db *mongo.Database, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{
		client:  client,
		docs:    db.Collection(mongoDocumentsCollection),
		locks:   db.Collection(mongoLocksCollection),
		logger:  logger,
		watches: newWatchRegistry(),
	}
}

// EnsureIndexes creates the collection/id index used by queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.docs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}, {Key: "id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("ensure documents index: %w", err)
	}
	return nil
}

func mongoFilter(q Query) (bson.D, error) {
	if !ValidCollection(q.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	filter := bson.D{{Key: "collection", Value: q.Collection}}
	for _, f := range q.Filters {
		filter = append(filter, bson.E{Key: "data." + f.Field, Value: f.Value})
	}
	return filter, nil
}

func mongoFindOptions(q Query) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return opts
}

func (d mongoDocument) document() (Document, error) {
	data, err := normalize(d.Data)
	if err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", d.Path, err)
	}
	return Document{Path: d.Path, ID: d.ID, Data: data}, nil
}

func (s *MongoStore) find(ctx context.Context, q Query) ([]Document, error) {
	filter, err := mongoFilter(q)
	if err != nil {
		return nil, err
	}
	cur, err := s.docs.Find(ctx, filter, mongoFindOptions(q))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer cur.Close(ctx)

	var rows []mongoDocument
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.Collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MongoStore) get(ctx context.Context, path string) (Document, error) {
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}
	var row mongoDocument
	if err := s.docs.FindOne(ctx, bson.M{"_id": path}).Decode(&row); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document %s: %w", path, err)
	}
	return row.document()
}

func (s *MongoStore) set(ctx context.Context, path string, data map[string]interface{}) error {
	collection, id, err := Split(path)
	if err != nil {
		return err
	}
	normalized, err := normalize(data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", path, err)
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"collection": collection,
			"id":         id,
			"data":       normalized,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	if _, err := s.docs.UpdateOne(ctx, bson.M{"_id": path}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("set document %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) update(ctx context.Context, path string, fields map[string]interface{}) error {
	if _, _, err := Split(path); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return fmt.Errorf("encode fields %s: %w", path, err)
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range normalized {
		set["data."+k] = v
	}
	res, err := s.docs.UpdateOne(ctx, bson.M{"_id": path}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update document %s: %w", path, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) delete(ctx context.Context, path string) error {
	if _, _, err := Split(path); err != nil {
		return err
	}
	if _, err := s.docs.DeleteOne(ctx, bson.M{"_id": path}); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	return nil
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, path string) (Document, error) {
	return s.get(ctx, path)
}

// Query implements Store.
func (s *MongoStore) Query(ctx context.Context, q Query) ([]Document, error) {
	return s.find(ctx, q)
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, collection string, data map[string]interface{}) (Document, error) {
	if !ValidCollection(collection) {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidPath, collection)
	}
	id := uuid.NewString()
	path := Join(collection, id)
	if err := s.set(ctx, path, data); err != nil {
		return Document{}, err
	}
	normalized, err := normalize(data)
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, ID: id, Data: normalized}, nil
}

// Set implements Store.
func (s *MongoStore) Set(ctx context.Context, path string, data map[string]interface{}) error {
	return s.set(ctx, path, data)
}

// Update implements Store.
func (s *MongoStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	return s.update(ctx, path, fields)
}

// Delete implements Store.
func (s *MongoStore) Delete(ctx context.Context, path string) error {
	return s.delete(ctx, path)
}

// RunTransaction implements Store.
func (s *MongoStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	var fnErr error
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		fnErr = fn(sc, &mongoTx{ctx: sc, store: s, locked: map[string]bool{}})
		return nil, fnErr
	})
	if err != nil {
		// a standalone server rejects the first write inside fn, not the commit
		if transactionNotSupported(err) {
			return fmt.Errorf("mongo transactions require a replica set: %w", err)
		}
		if fnErr != nil && errors.Is(err, fnErr) {
			return fnErr
		}
		return fmt.Errorf("commit document tx: %w", err)
	}
	return nil
}

// Watch implements Store with a change stream restricted to the collection's direct children.
func (s *MongoStore) Watch(ctx context.Context, q Query) (SnapshotIterator, error) {
	if !ValidCollection(q.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"documentKey._id": bson.M{"$regex": "^" + regexp.QuoteMeta(q.Collection) + "/[^/]+$"},
		}}},
	}
	var w *notifyWatch
	w = newNotifyWatch(ctx, func(ctx context.Context) ([]Document, error) {
		return s.find(ctx, q)
	}, func() { s.watches.remove(w) })

	stream, err := s.docs.Watch(w.ctx, pipeline)
	if err != nil {
		w.Stop()
		return nil, fmt.Errorf("open change stream %s: %w", q.Collection, err)
	}
	s.watches.add(q.Collection, w)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(w.ctx) {
			w.signal()
		}
		if w.ctx.Err() != nil {
			return
		}
		err := stream.Err()
		if err == nil {
			err = errors.New("change stream ended")
		}
		s.logger.Warn("change stream closed", zap.String("collection", q.Collection), zap.Error(err))
		w.fail(fmt.Errorf("watch %s: %w", q.Collection, err))
	}()
	return w, nil
}

// Close stops every live query. The client is owned by the caller.
func (s *MongoStore) Close() error {
	s.watches.stopAll()
	return nil
}

type mongoTx struct {
	ctx    mongo.SessionContext
	store  *MongoStore
	locked map[string]bool
}

// lock bumps the lock document of collection so that two transactions
// reading the same collection cannot both commit.
func (t *mongoTx) lock(collection string) error {
	if t.locked[collection] {
		return nil
	}
	_, err := t.store.locks.UpdateOne(t.ctx,
		bson.M{"_id": collection},
		bson.M{"$inc": bson.M{"version": 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("lock collection %s: %w", collection, err)
	}
	t.locked[collection] = true
	return nil
}

func (t *mongoTx) Get(path string) (Document, error) {
	collection, _, err := Split(path)
	if err != nil {
		return Document{}, err
	}
	if err := t.lock(collection); err != nil {
		return Document{}, err
	}
	return t.store.get(t.ctx, path)
}

func (t *mongoTx) Query(q Query) ([]Document, error) {
	if !ValidCollection(q.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	if err := t.lock(q.Collection); err != nil {
		return nil, err
	}
	return t.store.find(t.ctx, q)
}

func (t *mongoTx) Set(path string, data map[string]interface{}) error {
	return t.store.set(t.ctx, path, data)
}

func (t *mongoTx) Update(path string, fields map[string]interface{}) error {
	return t.store.update(t.ctx, path, fields)
}

func (t *mongoTx) Delete(path string) error {
	return t.store.delete(t.ctx, path)
}

// transactionNotSupported reports errors raised by standalone servers.
func transactionNotSupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 20, 51, 263:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "transaction") && strings.Contains(msg, "replica set")
}
