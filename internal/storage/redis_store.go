package storage

import (
	"context"
	"errors"
	"fmt"

	"chatdesk/internal/models"
	"chatdesk/internal/redis"
)

// RedisStore keeps the record under one key and announces every write on a
// channel so other processes sharing the server can reload.
type RedisStore struct {
	client   *redis.Client
	key      string
	channel  string
	writerID string
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{
		client:   client,
		key:      "chatdesk:state:" + namespace,
		channel:  "chatdesk:changed:" + namespace,
		writerID: models.NewID(),
	}
}

func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key)
	if errors.Is(err, redis.ErrCacheMiss) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return []byte(raw), nil
}

func (s *RedisStore) Save(ctx context.Context, payload []byte) error {
	if err := s.client.Set(ctx, s.key, payload, 0); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	s.announce(ctx)
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	s.announce(ctx)
	return nil
}

func (s *RedisStore) announce(ctx context.Context) {
	// best effort; the record itself is already written
	_ = s.client.Publish(ctx, s.channel, s.writerID)
}

// Changes calls fn whenever a different RedisStore writes the record.
func (s *RedisStore) Changes(ctx context.Context, fn func()) error {
	return s.client.Subscribe(ctx, s.channel, func(writer string) {
		if writer != s.writerID {
			fn()
		}
	})
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
