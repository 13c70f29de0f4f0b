package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TitleLength is the number of characters of the first message used as a
// session title.
const TitleLength = 30

// Session groups an ordered message history under a title.
type Session struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Messages []Message `json:"messages"`
	Archived bool      `json:"archived,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	out := s
	out.Messages = CloneMessages(s.Messages)
	return out
}

// DisplayTitle falls back to a placeholder for untitled sessions.
func (s Session) DisplayTitle() string {
	if strings.TrimSpace(s.Title) == "" {
		return "New Conversation"
	}
	return s.Title
}

// TruncateTitle returns the first TitleLength characters of content.
func TruncateTitle(content string) string {
	if utf8.RuneCountInString(content) <= TitleLength {
		return content
	}
	return string([]rune(content)[:TitleLength])
}

// DeriveTitle picks the title from the first message carrying text.
// Messages with empty content (attachment-only) are skipped.
func DeriveTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Content != "" {
			return TruncateTitle(msg.Content)
		}
	}
	return ""
}

// SnapshotTitle is the title used when a conversation is archived by
// starting a new chat; truncated titles carry an ellipsis.
func SnapshotTitle(messages []Message) string {
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		title := TruncateTitle(msg.Content)
		if title != msg.Content {
			title += "..."
		}
		return title
	}
	return ""
}
