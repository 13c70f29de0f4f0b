package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore keeps the record in the app_state table.
type SQLStore struct {
	db        *sql.DB
	driver    string
	namespace string
}

func NewSQLStore(db *sql.DB, driver, namespace string) *SQLStore {
	return &SQLStore{db: db, driver: driver, namespace: namespace}
}

func (s *SQLStore) Load(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM app_state WHERE namespace = ?`, s.namespace,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return payload, nil
}

// Save upserts the record inside one transaction.
func (s *SQLStore) Save(ctx context.Context, payload []byte) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt := `INSERT INTO app_state (namespace, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	if s.driver == "mysql" {
		stmt = `INSERT INTO app_state (namespace, payload, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	}
	if _, err = tx.ExecContext(ctx, stmt, s.namespace, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM app_state WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
