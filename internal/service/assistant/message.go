package assistant

import (
	"context"
	"time"

	"chatdesk/internal/models"
)

// AddMessage appends msg to the live conversation and mirrors it into the
// owning session, creating that session on first use. The session title is
// derived from the first message with text, so attachment-only messages
// leave it to a later message.
func (s *Service) AddMessage(ctx context.Context, msg models.Message) error {
	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = models.NewID()
	}
	return s.mutate(ctx, func(st *models.State) error {
		st.Messages = append(st.Messages, msg)
		if st.CurrentSessionID == "" {
			st.CurrentSessionID = models.NewID()
		}
		now := time.Now()
		idx := st.SessionIndex(st.CurrentSessionID)
		if idx < 0 {
			st.Sessions = append([]models.Session{{
				ID:       st.CurrentSessionID,
				Title:    models.DeriveTitle(st.Messages),
				Date:     now,
				Messages: models.CloneMessages(st.Messages),
			}}, st.Sessions...)
			return nil
		}
		session := &st.Sessions[idx]
		session.Messages = models.CloneMessages(st.Messages)
		session.Date = now
		if session.Title == "" {
			session.Title = models.DeriveTitle(st.Messages)
		}
		return nil
	})
}

// UpdateMessage replaces the content of message id in the live list and in
// the current session's copy. An unknown id changes nothing.
func (s *Service) UpdateMessage(ctx context.Context, id, content string) error {
	return s.updateMessage(ctx, id, func(m *models.Message) {
		m.Content = content
	})
}

// SetThinkingTiming records when reasoning started and how long it lasted.
func (s *Service) SetThinkingTiming(ctx context.Context, id string, start time.Time, duration time.Duration) error {
	return s.updateMessage(ctx, id, func(m *models.Message) {
		started := start
		m.ThinkingStartTime = &started
		m.ThinkingDuration = duration.Milliseconds()
	})
}

func (s *Service) updateMessage(ctx context.Context, id string, apply func(*models.Message)) error {
	return s.mutate(ctx, func(st *models.State) error {
		found := false
		for i := range st.Messages {
			if st.Messages[i].ID == id {
				apply(&st.Messages[i])
				found = true
				break
			}
		}
		if !found {
			return errNoChange
		}
		if idx := st.SessionIndex(st.CurrentSessionID); idx >= 0 {
			msgs := st.Sessions[idx].Messages
			for i := range msgs {
				if msgs[i].ID == id {
					apply(&msgs[i])
					break
				}
			}
		}
		return nil
	})
}
