package api

import (
	"time"

	"chatdesk/internal/models"
	"chatdesk/internal/thought"
)

// messageView is a message as the UI renders it: reasoning split from the
// answer on every read.
type messageView struct {
	ID                string              `json:"id"`
	Role              models.Role         `json:"role"`
	Content           string              `json:"content"`
	Thought           string              `json:"thought,omitempty"`
	Thinking          bool                `json:"thinking,omitempty"`
	Raw               string              `json:"raw"`
	Attachments       []models.Attachment `json:"attachments,omitempty"`
	ThinkingStartTime *time.Time          `json:"thinkingStartTime,omitempty"`
	ThinkingDuration  int64               `json:"thinkingDuration,omitempty"`
}

func newMessageView(msg models.Message) messageView {
	view := messageView{
		ID:                msg.ID,
		Role:              msg.Role,
		Content:           msg.Content,
		Raw:               msg.Content,
		Attachments:       msg.Attachments,
		ThinkingStartTime: msg.ThinkingStartTime,
		ThinkingDuration:  msg.ThinkingDuration,
	}
	if msg.Role == models.RoleAssistant {
		res := thought.Extract(msg.Content)
		view.Content = res.Content
		view.Thought = res.Thought
		view.Thinking = res.InProgress
	}
	return view
}

func newMessageViews(msgs []models.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, newMessageView(msg))
	}
	return out
}

type sessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	Archived     bool      `json:"archived"`
	MessageCount int       `json:"messageCount"`
}

func newSessionSummaries(sessions []models.Session) []sessionSummary {
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{
			ID:           s.ID,
			Title:        s.DisplayTitle(),
			Date:         s.Date,
			Archived:     s.Archived,
			MessageCount: len(s.Messages),
		})
	}
	return out
}

type stateView struct {
	Settings         models.Settings  `json:"settings"`
	Sessions         []sessionSummary `json:"sessions"`
	Messages         []messageView    `json:"messages"`
	CurrentSessionID string           `json:"currentSessionId"`
	IsLoading        bool             `json:"isLoading"`
	CaptureActive    bool             `json:"captureActive"`
}
