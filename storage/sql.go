package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// SQLStore keeps client state in a shared database table so that several
// app processes on one machine (or a kiosk fleet) see the same snapshot
// and activity clock. Writers race without locking; the upsert makes the
// last write win per key.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLStore opens a connection pool and ensures the state table exists
func NewSQLStore(connectionString string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLStore{db: db, logger: logger}
	if err := store.migrate(ctx); err != nil {
		return nil, err
	}

	logger.Info("sql state store ready")
	return store, nil
}

// NewSQLStoreWithDB wraps an existing connection pool (used by tests)
func NewSQLStoreWithDB(db *sql.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS client_state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create client_state table: %w", err)
	}
	return nil
}

// Get retrieves a value by key
func (s *SQLStore) Get(key string) (string, bool, error) {
	query := `SELECT value FROM client_state WHERE key = $1`

	var value string
	err := s.db.QueryRow(query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read client state: %w", err)
	}
	return value, true, nil
}

// Set creates or replaces the value for a key
func (s *SQLStore) Set(key, value string) error {
	query := `
		INSERT INTO client_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := s.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to write client state: %w", err)
	}
	s.logger.Debug("client state written", zap.String("key", key))
	return nil
}

// Delete removes a key
func (s *SQLStore) Delete(key string) error {
	query := `DELETE FROM client_state WHERE key = $1`
	if _, err := s.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete client state: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}
