// Package localstore is the durable key/value storage behind the
// assistant's preferences and conversation history. It plays the role a
// browser's localStorage plays for the widget: small JSON blobs under
// fixed keys, read at startup and rewritten on every mutation.
//
// Values are grouped by namespace so several components can share one
// database file without key collisions.
package localstore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // "sqlite3" driver (cgo)
	_ "modernc.org/sqlite"          // "sqlite" driver (pure Go)
)

// Supported database/sql driver names.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// Bucket is a single namespace of string values. Get returns an empty
// string and nil error for a missing key.
type Bucket interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Store is a namespaced key-value store backed by SQLite. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath using driver, which
// must be DriverCGO or DriverPure. An empty driver selects DriverCGO.
func NewStore(dbPath, driver string) (*Store, error) {
	var dsn string
	switch driver {
	case "", DriverCGO:
		driver = DriverCGO
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverPure:
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q (valid: %s, %s)", driver, DriverCGO, DriverPure)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS local_storage (
		namespace  TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`)
	return err
}

// Get returns the stored value for a namespace/key pair. Returns empty
// string and nil error if the key does not exist.
func (s *Store) Get(namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM local_storage WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Set upserts a namespace/key/value triple.
func (s *Store) Set(namespace, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO local_storage (namespace, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Delete removes a namespace/key entry. No error is returned if the
// key does not exist.
func (s *Store) Delete(namespace, key string) error {
	_, err := s.db.Exec(
		`DELETE FROM local_storage WHERE namespace = ? AND key = ?`,
		namespace, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Bucket returns a view of one namespace.
func (s *Store) Bucket(namespace string) Bucket {
	return &sqlBucket{store: s, namespace: namespace}
}

type sqlBucket struct {
	store     *Store
	namespace string
}

func (b *sqlBucket) Get(key string) (string, error) { return b.store.Get(b.namespace, key) }
func (b *sqlBucket) Set(key, value string) error    { return b.store.Set(b.namespace, key, value) }
func (b *sqlBucket) Delete(key string) error        { return b.store.Delete(b.namespace, key) }

// MemoryBucket is a process-local Bucket for one-shot commands and tests
// where nothing needs to survive a restart.
type MemoryBucket struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryBucket returns an empty in-memory bucket.
func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{values: make(map[string]string)}
}

// Get implements Bucket.
func (b *MemoryBucket) Get(key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values[key], nil
}

// Set implements Bucket.
func (b *MemoryBucket) Set(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
	return nil
}

// Delete implements Bucket.
func (b *MemoryBucket) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}
