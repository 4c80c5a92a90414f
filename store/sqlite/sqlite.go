// Package sqlite implements axon.KvStore and axon.SessionStore on
// pure-Go SQLite. Zero CGO required. Keyword search scoring runs
// in-process over the candidate namespace using the shared axon
// ranking, so ordering semantics match the other backends exactly.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nevindra/axon"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. If not set, no
// logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store backs both memory interfaces with one SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ axon.KvStore = (*Store)(nil)

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath. A single
// shared connection serializes all goroutines, eliminating SQLITE_BUSY
// errors from concurrent writers.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with
		// the blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS kv_items (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			importance REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			messages TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range tables {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &axon.ErrMemory{Op: "init", Message: err.Error()}
		}
	}
	s.logger.Debug("sqlite: schema ready")
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// --- KvStore ---

func (s *Store) Put(ctx context.Context, namespace []string, key string, value json.RawMessage, importance float64) error {
	now := axon.NowUnix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_items (namespace, key, value, created_at, updated_at, importance)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			importance = excluded.importance`,
		axon.JoinNamespace(namespace), key, string(value), now, now, importance)
	if err != nil {
		return &axon.ErrMemory{Op: "kv put", Message: err.Error()}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, namespace []string, key string) (axon.KvItem, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT value, created_at, updated_at, importance
		FROM kv_items WHERE namespace = ? AND key = ?`,
		axon.JoinNamespace(namespace), key)

	var value string
	item := axon.KvItem{Namespace: append([]string(nil), namespace...), Key: key}
	err := row.Scan(&value, &item.CreatedAt, &item.UpdatedAt, &item.Importance)
	if err == sql.ErrNoRows {
		return axon.KvItem{}, false, nil
	}
	if err != nil {
		return axon.KvItem{}, false, &axon.ErrMemory{Op: "kv get", Message: err.Error()}
	}
	item.Value = json.RawMessage(value)
	return item, true, nil
}

func (s *Store) Delete(ctx context.Context, namespace []string, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_items WHERE namespace = ? AND key = ?`,
		axon.JoinNamespace(namespace), key)
	if err != nil {
		return false, &axon.ErrMemory{Op: "kv delete", Message: err.Error()}
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ListNamespaces(ctx context.Context, prefix []string) ([][]string, error) {
	query := `SELECT DISTINCT namespace FROM kv_items`
	args := []any{}
	if len(prefix) > 0 {
		query += ` WHERE namespace = ? OR namespace LIKE ?`
		joined := axon.JoinNamespace(prefix)
		args = append(args, joined, joined+axon.NamespaceSep+"%")
	}
	query += ` ORDER BY namespace`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &axon.ErrMemory{Op: "kv list", Message: err.Error()}
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, &axon.ErrMemory{Op: "kv list", Message: err.Error()}
		}
		out = append(out, axon.SplitNamespace(ns))
	}
	return out, rows.Err()
}

func (s *Store) Search(ctx context.Context, namespace []string, query string, limit int) ([]axon.KvItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, created_at, updated_at, importance
		FROM kv_items WHERE namespace = ?`,
		axon.JoinNamespace(namespace))
	if err != nil {
		return nil, &axon.ErrMemory{Op: "kv search", Message: err.Error()}
	}
	defer rows.Close()

	tokens := axon.TokenizeQuery(query)
	var scored []axon.KvItem
	for rows.Next() {
		var value string
		item := axon.KvItem{Namespace: append([]string(nil), namespace...)}
		if err := rows.Scan(&item.Key, &value, &item.CreatedAt, &item.UpdatedAt, &item.Importance); err != nil {
			return nil, &axon.ErrMemory{Op: "kv search", Message: err.Error()}
		}
		item.Value = json.RawMessage(value)
		score := axon.ScoreItem(item, tokens)
		if score == 0 {
			continue
		}
		item.Score = score
		scored = append(scored, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &axon.ErrMemory{Op: "kv search", Message: err.Error()}
	}
	axon.RankItems(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// --- SessionStore ---

// Sessions returns the session-store view of this database. The Store
// itself implements KvStore; sessions live behind a separate view so
// the two Get signatures don't collide.
func (s *Store) Sessions() *SessionView { return &SessionView{s} }

// SessionView adapts the shared database to axon.SessionStore.
type SessionView struct {
	store *Store
}

func (v *SessionView) Get(ctx context.Context, id string) (axon.SessionSnapshot, bool, error) {
	row := v.store.db.QueryRowContext(ctx, `SELECT messages FROM sessions WHERE session_id = ?`, id)
	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return axon.SessionSnapshot{}, false, nil
	}
	if err != nil {
		return axon.SessionSnapshot{}, false, &axon.ErrMemory{Op: "session get", Message: err.Error()}
	}
	var messages []axon.ChatMessage
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return axon.SessionSnapshot{}, false, &axon.ErrMemory{Op: "session get", Message: err.Error()}
	}
	return axon.SessionSnapshot{SessionID: id, Messages: messages}, true, nil
}

func (v *SessionView) Put(ctx context.Context, id string, messages []axon.ChatMessage) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return &axon.ErrMemory{Op: "session put", Message: err.Error()}
	}
	_, err = v.store.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, messages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		id, string(raw), axon.NowUnix())
	if err != nil {
		return &axon.ErrMemory{Op: "session put", Message: err.Error()}
	}
	return nil
}

func (v *SessionView) List(ctx context.Context) ([]string, error) {
	rows, err := v.store.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, &axon.ErrMemory{Op: "session list", Message: err.Error()}
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &axon.ErrMemory{Op: "session list", Message: err.Error()}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (v *SessionView) Delete(ctx context.Context, id string) error {
	if _, err := v.store.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
		return &axon.ErrMemory{Op: "session delete", Message: err.Error()}
	}
	return nil
}

var _ axon.SessionStore = (*SessionView)(nil)
