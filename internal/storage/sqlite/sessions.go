package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/telegate/pkg/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no session blob is stored under a key
var ErrNotFound = errors.New("session not found")

// SessionRecord describes a stored session without its payload
type SessionRecord struct {
	Key       string    `json:"fingerprint"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStorage keeps MTProto session blobs keyed by credential fingerprint.
// It is the only state the service persists.
type SessionStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewSessionStorage opens (or creates) the database at dbPath
func NewSessionStorage(dbPath string, log *logger.Logger) (*SessionStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite session storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := initSessionSchema(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &SessionStorage{db: db, logger: storageLogger}, nil
}

func initSessionSchema(db *sql.DB, log *logger.Logger) error {
	log.Debug("Initializing session schema")

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SessionStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the blob stored under key, or ErrNotFound
func (s *SessionStorage) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return data, nil
}

// Store inserts or replaces the blob under key
func (s *SessionStorage) Store(ctx context.Context, key string, data []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (key, data, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data, now, now)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.logger.Debug("Stored session",
		logger.String("key", key),
		logger.Int("size", len(data)))
	return nil
}

// Delete removes the blob under key. Deleting a missing key is not an error.
func (s *SessionStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Records lists stored sessions, most recently updated first
func (s *SessionStorage) Records(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, length(data), created_at, updated_at
		FROM sessions
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var record SessionRecord
		if err := rows.Scan(&record.Key, &record.Size, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
