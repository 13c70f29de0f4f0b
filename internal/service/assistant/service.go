package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"chatdesk/internal/models"
	"chatdesk/internal/storage"
)

// ErrSessionNotFound is returned, with no state change, by operations that
// name a session id the store does not hold.
var ErrSessionNotFound = errors.New("session not found")

// errNoChange lets a mutation finish without committing.
var errNoChange = errors.New("no change")

// Service owns the chat state. Writers are serialized and publish a new
// immutable snapshot per mutation; readers load the current snapshot
// without locking. Every committed mutation is flushed to the persister.
type Service struct {
	mu        sync.Mutex
	state     atomic.Pointer[models.State]
	persister storage.Persister
	cipher    *tokenCipher

	// holds and pendingReload are guarded by mu.
	holds         int
	pendingReload context.Context

	subMu       sync.Mutex
	subscribers map[int]chan *models.State
	nextSub     int
}

// NewService hydrates the store from persister. Credentials are encrypted
// at rest when CHATDESK_APIKEY_KEY is set.
func NewService(ctx context.Context, persister storage.Persister) (*Service, error) {
	cipher, err := newTokenCipherFromEnv()
	if err != nil {
		return nil, err
	}
	s := &Service{
		persister:   persister,
		cipher:      cipher,
		subscribers: make(map[int]chan *models.State),
	}
	state, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.state.Store(state)
	return s, nil
}

func (s *Service) load(ctx context.Context) (*models.State, error) {
	payload, err := s.persister.Load(ctx)
	if errors.Is(err, storage.ErrNoState) {
		return models.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("hydrate state: %w", err)
	}
	return s.decode(payload)
}

func (s *Service) decode(payload []byte) (*models.State, error) {
	state := models.NewState()
	if err := json.Unmarshal(payload, state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	settings, err := s.cipher.openSettings(state.Settings)
	if err != nil {
		return nil, fmt.Errorf("decrypt settings: %w", err)
	}
	state.Settings = settings
	if state.Sessions == nil {
		state.Sessions = []models.Session{}
	}
	if state.Messages == nil {
		state.Messages = []models.Message{}
	}
	return state, nil
}

func (s *Service) encode(state *models.State) ([]byte, error) {
	sealed, err := s.cipher.sealSettings(state.Settings)
	if err != nil {
		return nil, fmt.Errorf("encrypt settings: %w", err)
	}
	out := *state
	out.Settings = sealed
	return json.Marshal(&out)
}

// mutate applies fn to a private copy of the state and commits it. If fn
// fails nothing changes. If the flush fails the new state is kept in memory
// and the error is returned.
func (s *Service) mutate(ctx context.Context, fn func(st *models.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Load().Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	s.state.Store(next)
	s.publish(next)
	return s.flush(ctx, next)
}

func (s *Service) flush(ctx context.Context, state *models.State) error {
	payload, err := s.encode(state)
	if err != nil {
		return err
	}
	if err := s.persister.Save(ctx, payload); err != nil {
		slog.Error("persist chat state failed", "err", err)
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Reload replaces the in-memory state with the persisted record, for when
// another process wrote it. While the live list is held the reload is
// deferred until the last hold is released.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holds > 0 {
		s.pendingReload = context.WithoutCancel(ctx)
		slog.Debug("chat state reload deferred", "holds", s.holds)
		return nil
	}
	return s.reloadLocked(ctx)
}

func (s *Service) reloadLocked(ctx context.Context) error {
	state, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.state.Store(state)
	s.publish(state)
	return nil
}

// Hold keeps Reload from replacing the live list until release is called.
// A send cycle holds the store so its placeholder cannot be swapped out
// while it streams.
func (s *Service) Hold() (release func()) {
	s.mu.Lock()
	s.holds++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.holds--
			if s.holds > 0 || s.pendingReload == nil {
				return
			}
			ctx := s.pendingReload
			s.pendingReload = nil
			if err := s.reloadLocked(ctx); err != nil {
				slog.Warn("deferred chat state reload failed", "err", err)
			}
		})
	}
}

// Follow reloads the state whenever a shared backend reports a write from
// another process. Backends without change notification are ignored.
func (s *Service) Follow(ctx context.Context) error {
	notifier, ok := s.persister.(storage.Notifier)
	if !ok {
		return nil
	}
	return notifier.Changes(ctx, func() {
		if err := s.Reload(ctx); err != nil {
			slog.Warn("reload chat state failed", "err", err)
		}
	})
}

// Reset clears the store and the durable record.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := models.NewState()
	s.state.Store(state)
	s.publish(state)
	if err := s.persister.Clear(ctx); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the whole state.
func (s *Service) Snapshot() *models.State {
	return s.state.Load().Clone()
}

// Messages returns the live message list.
func (s *Service) Messages() []models.Message {
	msgs := models.CloneMessages(s.state.Load().Messages)
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs
}

// Sessions returns every stored session, newest first.
func (s *Service) Sessions() []models.Session {
	state := s.state.Load()
	out := make([]models.Session, len(state.Sessions))
	for i, session := range state.Sessions {
		out[i] = session.Clone()
	}
	return out
}

// Session returns one stored session.
func (s *Service) Session(id string) (models.Session, error) {
	state := s.state.Load()
	idx := state.SessionIndex(id)
	if idx < 0 {
		return models.Session{}, ErrSessionNotFound
	}
	return state.Sessions[idx].Clone(), nil
}

// CurrentSessionID is the id the live message list belongs to.
func (s *Service) CurrentSessionID() string {
	return s.state.Load().CurrentSessionID
}

// Subscribe delivers a copy of every committed state. Slow receivers only
// see the latest state. Call cancel to stop delivery.
func (s *Service) Subscribe() (<-chan *models.State, func()) {
	ch := make(chan *models.State, 1)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Service) publish(state *models.State) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		snapshot := state.Clone()
		select {
		case ch <- snapshot:
			continue
		default:
		}
		// drop the stale snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
