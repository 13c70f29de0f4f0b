package assistant

import (
	"context"
	"time"

	"chatdesk/internal/models"
)

// CreateNewChat files the live conversation as a session (if it has any
// messages) and starts an empty one under a fresh id.
func (s *Service) CreateNewChat(ctx context.Context) error {
	return s.mutate(ctx, func(st *models.State) error {
		if len(st.Messages) > 0 {
			id := st.CurrentSessionID
			if id == "" {
				id = models.NewID()
			}
			session := models.Session{
				ID:       id,
				Title:    models.SnapshotTitle(st.Messages),
				Date:     time.Now(),
				Messages: models.CloneMessages(st.Messages),
			}
			if idx := st.SessionIndex(id); idx >= 0 {
				session.Archived = st.Sessions[idx].Archived
				st.Sessions[idx] = session
			} else {
				st.Sessions = append([]models.Session{session}, st.Sessions...)
			}
		}
		st.Messages = []models.Message{}
		st.CurrentSessionID = models.NewID()
		return nil
	})
}

// LoadSession makes a stored session the live conversation. The outgoing
// live list is not saved first.
func (s *Service) LoadSession(ctx context.Context, id string) error {
	return s.mutate(ctx, func(st *models.State) error {
		idx := st.SessionIndex(id)
		if idx < 0 {
			return ErrSessionNotFound
		}
		st.Messages = models.CloneMessages(st.Sessions[idx].Messages)
		if st.Messages == nil {
			st.Messages = []models.Message{}
		}
		st.CurrentSessionID = id
		return nil
	})
}

// DeleteSession removes a session. Deleting the current session also
// clears the live conversation.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.mutate(ctx, func(st *models.State) error {
		idx := st.SessionIndex(id)
		if idx < 0 {
			return ErrSessionNotFound
		}
		st.Sessions = append(st.Sessions[:idx], st.Sessions[idx+1:]...)
		if st.CurrentSessionID == id {
			st.Messages = []models.Message{}
			st.CurrentSessionID = ""
		}
		return nil
	})
}

// ArchiveSession flags a session as archived. It stays in the collection.
func (s *Service) ArchiveSession(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

func (s *Service) UnarchiveSession(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *Service) setArchived(ctx context.Context, id string, archived bool) error {
	return s.mutate(ctx, func(st *models.State) error {
		idx := st.SessionIndex(id)
		if idx < 0 {
			return ErrSessionNotFound
		}
		if st.Sessions[idx].Archived == archived {
			return errNoChange
		}
		st.Sessions[idx].Archived = archived
		return nil
	})
}
