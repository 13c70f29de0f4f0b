// Package storage keeps the chat state durable. The whole state is one
// opaque record under a namespace; backends only differ in where the bytes
// go.
package storage

import (
	"context"
	"errors"
	"fmt"

	"chatdesk/internal/config"
	"chatdesk/internal/redis"
)

// ErrNoState is returned by Load when nothing has been saved yet.
var ErrNoState = errors.New("no persisted state")

// Persister stores the serialized state record.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
	Clear(ctx context.Context) error
	Close() error
}

// Notifier is implemented by backends shared between processes. fn is
// called when another writer replaced the record.
type Notifier interface {
	Changes(ctx context.Context, fn func()) error
}

// OpenPersister builds the backend selected in cfg.Storage.
func OpenPersister(ctx context.Context, cfg *config.Config) (Persister, error) {
	ns := cfg.Storage.Namespace
	switch cfg.Storage.Backend {
	case "sqlite", "sqlite3", "mysql":
		db, err := Open(cfg.Storage.Backend, cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db, cfg.Storage.Backend); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLStore(db, cfg.Storage.Backend, ns), nil
	case "redis":
		client, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, ns), nil
	case "file":
		return NewFileStore(cfg.Storage.FilePath), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
