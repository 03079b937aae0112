package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/picrate/picrate/internal/config"
)

// Store persists the per-user seen-items set: a JSON array keyed by
// user name, loaded at startup and rewritten whole on every mutation.
type Store struct {
	config *config.Seen

	db  *sql.DB       // sqlite driver
	rdb *redis.Client // redis driver
}

// New creates a Store with the given configuration
func New(ctx context.Context, cfg *config.Seen) (*Store, error) {
	s := &Store{
		config: cfg,
	}

	// Initialize the appropriate backend
	switch cfg.Driver {
	case "sqlite":
		if err := s.initSQLite(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
	case "redis":
		if err := s.initRedis(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported seen driver: %s", cfg.Driver)
	}

	return s, nil
}

func (s *Store) initSQLite(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.config.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db

	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS seen_items (
			user_name  TEXT PRIMARY KEY,
			filenames  TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create seen_items table: %w", err)
	}
	return nil
}

func (s *Store) initRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(s.config.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	s.rdb = rdb
	return nil
}

func seenKey(userName string) string {
	return "picrate:seen:" + userName
}

// LoadSeen returns the persisted seen filenames for a user. A user
// with no stored set yields an empty slice, not an error.
func (s *Store) LoadSeen(ctx context.Context, userName string) ([]string, error) {
	var raw string

	switch {
	case s.db != nil:
		err := s.db.QueryRowContext(ctx,
			"SELECT filenames FROM seen_items WHERE user_name = ?", userName).Scan(&raw)
		if err == sql.ErrNoRows {
			return []string{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load seen set: %w", err)
		}
	case s.rdb != nil:
		val, err := s.rdb.Get(ctx, seenKey(userName)).Result()
		if err == redis.Nil {
			return []string{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load seen set: %w", err)
		}
		raw = val
	default:
		return nil, fmt.Errorf("store not initialized")
	}

	var filenames []string
	if err := json.Unmarshal([]byte(raw), &filenames); err != nil {
		return nil, fmt.Errorf("failed to decode seen set: %w", err)
	}
	return filenames, nil
}

// SaveSeen rewrites the full seen set for a user as a JSON array.
func (s *Store) SaveSeen(ctx context.Context, userName string, filenames []string) error {
	if filenames == nil {
		filenames = []string{}
	}

	raw, err := json.Marshal(filenames)
	if err != nil {
		return fmt.Errorf("failed to encode seen set: %w", err)
	}

	switch {
	case s.db != nil:
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO seen_items (user_name, filenames, updated_at)
			VALUES (?, ?, strftime('%s','now'))
			ON CONFLICT(user_name) DO UPDATE SET
				filenames = excluded.filenames,
				updated_at = excluded.updated_at
		`, userName, string(raw))
		if err != nil {
			return fmt.Errorf("failed to save seen set: %w", err)
		}
		return nil
	case s.rdb != nil:
		if err := s.rdb.Set(ctx, seenKey(userName), string(raw), 0).Err(); err != nil {
			return fmt.Errorf("failed to save seen set: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("store not initialized")
	}
}

// Driver returns the configured backend name.
func (s *Store) Driver() string {
	return s.config.Driver
}

// DB returns the underlying database connection (sqlite driver only).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the storage connections
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}
	return nil
}

// SeenSet is the in-memory view of one user's seen items, persisted
// through the Store on every mutation.
type SeenSet struct {
	mu    sync.RWMutex
	user  string
	set   map[string]struct{}
	store *Store
}

// LoadSeenSet loads a user's seen set from the store.
func LoadSeenSet(ctx context.Context, store *Store, userName string) (*SeenSet, error) {
	filenames, err := store.LoadSeen(ctx, userName)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(filenames))
	for _, f := range filenames {
		set[f] = struct{}{}
	}

	return &SeenSet{
		user:  userName,
		set:   set,
		store: store,
	}, nil
}

// MarkSeen adds a filename to the set and rewrites the persisted
// array. Marking an already-seen filename does not touch storage.
func (ss *SeenSet) MarkSeen(ctx context.Context, filename string) error {
	ss.mu.Lock()
	if _, ok := ss.set[filename]; ok {
		ss.mu.Unlock()
		return nil
	}
	ss.set[filename] = struct{}{}
	filenames := ss.filenamesLocked()
	ss.mu.Unlock()

	return ss.store.SaveSeen(ctx, ss.user, filenames)
}

// Seen reports whether a filename has been marked.
func (ss *SeenSet) Seen(filename string) bool {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	_, ok := ss.set[filename]
	return ok
}

// Count returns the set size.
func (ss *SeenSet) Count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.set)
}

// Filenames returns the set contents, sorted for stable persistence.
func (ss *SeenSet) Filenames() []string {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.filenamesLocked()
}

func (ss *SeenSet) filenamesLocked() []string {
	out := make([]string, 0, len(ss.set))
	for f := range ss.set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
