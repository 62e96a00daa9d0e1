package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ChangeChannel is the LISTEN/NOTIFY channel carrying changed collection paths.
const ChangeChannel = "docstore_changes"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS documents_collection_id_idx ON documents (collection, id);
`

type documentRow struct {
	Path string `db:"path"`
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

// PostgresStore keeps every document as a JSONB row keyed by its path.
// Transactions take a per-collection advisory lock on every collection they
// query, which serializes read-then-write sequences such as status switches.
// Live queries are driven by LISTEN/NOTIFY on ChangeChannel.
type PostgresStore struct {
	db     *sqlx.DB
	dsn    string
	logger *zap.Logger

	watches      *watchRegistry
	listenerOnce sync.Once
	listenerErr  error
	listener     *pq.Listener
	done         chan struct{}
}

// NewPostgresStore wraps a sqlx connection. dsn is used to open the
// notification listener on the first Watch call.
func NewPostgresStore(db *sqlx.DB, dsn string, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		db:      db,
		dsn:     dsn,
		logger:  logger,
		watches: newWatchRegistry(),
		done:    make(chan struct{}),
	}
}

// EnsureSchema creates the documents table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func buildSelect(q Query, forUpdate bool) (string, []interface{}, error) {
	if !ValidCollection(q.Collection) {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	var b strings.Builder
	args := []interface{}{q.Collection}
	b.WriteString("SELECT path, id, data FROM documents WHERE collection = $1")
	for _, f := range q.Filters {
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		args = append(args, f.Field, string(raw))
		fmt.Fprintf(&b, " AND data -> $%d = $%d::jsonb", len(args)-1, len(args))
	}
	b.WriteString(" ORDER BY id ASC")
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if forUpdate {
		b.WriteString(" FOR UPDATE")
	}
	return b.String(), args, nil
}

func rowsToDocuments(rows []documentRow) ([]Document, error) {
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

func (r documentRow) document() (Document, error) {
	data := map[string]interface{}{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return Document{}, fmt.Errorf("decode document %s: %w", r.Path, err)
		}
	}
	return Document{Path: r.Path, ID: r.ID, Data: data}, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := Split(path); err != nil {
		return Document{}, err
	}
	var row documentRow
	if err := s.db.GetContext(ctx, &row, `SELECT path, id, data FROM documents WHERE path = $1`, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document %s: %w", path, err)
	}
	return row.document()
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Document, error) {
	query, args, err := buildSelect(q, false)
	if err != nil {
		return nil, err
	}
	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return rowsToDocuments(rows)
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, collection string, data map[string]interface{}) (Document, error) {
	if !ValidCollection(collection) {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidPath, collection)
	}
	path := Join(collection, uuid.NewString())
	if err := s.Set(ctx, path, data); err != nil {
		return Document{}, err
	}
	normalized, err := normalize(data)
	if err != nil {
		return Document{}, err
	}
	_, id, _ := Split(path)
	return Document{Path: path, ID: id, Data: normalized}, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, path string, data map[string]interface{}) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(path, data)
	})
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(path, fields)
	})
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(path)
	})
}

// RunTransaction implements Store. Change notifications are queued inside the
// transaction and therefore delivered only if it commits.
func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin document tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &postgresTx{ctx: ctx, tx: sqlTx, locked: map[string]bool{}, touched: map[string]bool{}}
	if err = fn(ctx, tx); err != nil {
		return err
	}
	for _, collection := range tx.touchedOrder {
		if _, err = sqlTx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, collection); err != nil {
			return fmt.Errorf("queue change notification: %w", err)
		}
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit document tx: %w", err)
	}
	return nil
}

// Watch implements Store.
func (s *PostgresStore) Watch(ctx context.Context, q Query) (SnapshotIterator, error) {
	if !ValidCollection(q.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, q.Collection)
	}
	if err := s.startListener(); err != nil {
		return nil, err
	}
	var w *notifyWatch
	w = newNotifyWatch(ctx, func(ctx context.Context) ([]Document, error) {
		return s.Query(ctx, q)
	}, func() { s.watches.remove(w) })
	s.watches.add(q.Collection, w)
	return w, nil
}

func (s *PostgresStore) startListener() error {
	s.listenerOnce.Do(func() {
		if s.dsn == "" {
			s.listenerErr = errors.New("docstore: postgres watch requires a listener dsn")
			return
		}
		listener := pq.NewListener(s.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				s.logger.Warn("document listener event", zap.Int("event", int(ev)), zap.Error(err))
			}
		})
		if err := listener.Listen(ChangeChannel); err != nil {
			_ = listener.Close()
			s.listenerErr = fmt.Errorf("listen %s: %w", ChangeChannel, err)
			return
		}
		s.listener = listener
		go s.dispatch(listener)
	})
	return s.listenerErr
}

func (s *PostgresStore) dispatch(listener *pq.Listener) {
	for {
		select {
		case <-s.done:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnected: notifications may have been missed.
				s.watches.notify("")
				continue
			}
			s.watches.notify(n.Extra)
		}
	}
}

// Close stops every live query and the listener. The sqlx handle is owned by the caller.
func (s *PostgresStore) Close() error {
	s.watches.stopAll()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

type postgresTx struct {
	ctx          context.Context
	tx           *sqlx.Tx
	locked       map[string]bool
	touched      map[string]bool
	touchedOrder []string
	wrote        bool
}

func (t *postgresTx) lock(collection string) error {
	if t.locked[collection] {
		return nil
	}
	if _, err := t.tx.ExecContext(t.ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, collection); err != nil {
		return fmt.Errorf("lock collection %s: %w", collection, err)
	}
	t.locked[collection] = true
	return nil
}

func (t *postgresTx) touch(collection string) {
	if !t.touched[collection] {
		t.touched[collection] = true
		t.touchedOrder = append(t.touchedOrder, collection)
	}
}

func (t *postgresTx) Get(path string) (Document, error) {
	if t.wrote {
		return Document{}, errReadAfterWrite
	}
	collection, _, err := Split(path)
	if err != nil {
		return Document{}, err
	}
	if err := t.lock(collection); err != nil {
		return Document{}, err
	}
	var row documentRow
	if err := t.tx.GetContext(t.ctx, &row, `SELECT path, id, data FROM documents WHERE path = $1 FOR UPDATE`, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get document %s: %w", path, err)
	}
	return row.document()
}

func (t *postgresTx) Query(q Query) ([]Document, error) {
	if t.wrote {
		return nil, errReadAfterWrite
	}
	query, args, err := buildSelect(q, true)
	if err != nil {
		return nil, err
	}
	if err := t.lock(q.Collection); err != nil {
		return nil, err
	}
	var rows []documentRow
	if err := t.tx.SelectContext(t.ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	return rowsToDocuments(rows)
}

func (t *postgresTx) Set(path string, data map[string]interface{}) error {
	collection, id, err := Split(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cloneData(data))
	if err != nil {
		return fmt.Errorf("encode document %s: %w", path, err)
	}
	now := time.Now().UTC()
	const query = `INSERT INTO documents (path, collection, id, data, created_at, updated_at) VALUES ($1, $2, $3, $4::jsonb, $5, $5)
ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	if _, err := t.tx.ExecContext(t.ctx, query, path, collection, id, string(raw), now); err != nil {
		return fmt.Errorf("set document %s: %w", path, err)
	}
	t.wrote = true
	t.touch(collection)
	return nil
}

func (t *postgresTx) Update(path string, fields map[string]interface{}) error {
	collection, _, err := Split(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cloneData(fields))
	if err != nil {
		return fmt.Errorf("encode fields %s: %w", path, err)
	}
	res, err := t.tx.ExecContext(t.ctx, `UPDATE documents SET data = data || $2::jsonb, updated_at = $3 WHERE path = $1`, path, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document %s: %w", path, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s: %w", path, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	t.wrote = true
	t.touch(collection)
	return nil
}

func (t *postgresTx) Delete(path string) error {
	collection, _, err := Split(path)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	t.wrote = true
	t.touch(collection)
	return nil
}
