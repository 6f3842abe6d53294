// Package cartcache keeps a local SQLite copy of each owner's cart.
//
// It serves two purposes: anonymous shoppers keep their cart when Postgres is
// unreachable, and the last durable state of every cart is available for fast
// reads. Entries older than the configured max age are treated as absent and
// removed on access.
package cartcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS cart_entries (
    cache_key TEXT PRIMARY KEY,
    payload   BLOB NOT NULL,
    saved_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cart_entries_saved_at ON cart_entries (saved_at);
`

// Store is a SQLite-backed cart cache.
type Store struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger
}

type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// Open creates or opens the cache database at path. Use ":memory:" in tests.
func Open(path string, maxAge time.Duration, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cart cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect cart cache: %w", err)
	}

	// One connection: SQLite has a single writer and ":memory:" is per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("cart cache %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cart cache schema: %w", err)
	}

	s := &Store{db: db, maxAge: maxAge, now: time.Now, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Key builds the cache key for an owner within a project.
func Key(projectID string, owner domain.Identity) string {
	return projectID + "/" + owner.Key()
}

// Load returns the cached cart for key. A stale entry is deleted and reported as ErrNotFound.
func (s *Store) Load(ctx context.Context, key string) (*domain.Cart, error) {
	var payload []byte
	var savedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT payload, saved_at FROM cart_entries WHERE cache_key = ?`, key).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cached cart: %w", err)
	}

	if s.maxAge > 0 && s.now().Sub(time.UnixMilli(savedAt)) > s.maxAge {
		s.logger.Debugw("cart cache: discarding stale entry", "key", key)
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotFound
	}

	var cart domain.Cart
	if err := json.Unmarshal(payload, &cart); err != nil {
		return nil, fmt.Errorf("decode cached cart: %w", err)
	}
	return &cart, nil
}

// Save replaces the cached cart for key and stamps it with the current time.
func (s *Store) Save(ctx context.Context, key string, cart *domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO cart_entries (cache_key, payload, saved_at) VALUES (?, ?, ?)
ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
`, key, payload, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save cached cart: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_entries WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("delete cached cart: %w", err)
	}
	return nil
}

// Prune removes every entry older than the max age and reports how many went.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_entries WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cart cache: %w", err)
	}
	return res.RowsAffected()
}
