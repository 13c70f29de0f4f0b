package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	payload []byte
	failErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil {
		return nil, ErrNoState
	}
	return append([]byte(nil), s.payload...), nil
}

func (s *MemoryStore) Save(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.payload = append([]byte(nil), payload...)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = nil
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// FailSaves makes every following Save return err; nil restores normal
// behaviour.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}
