package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation. Only Content of the in-flight
// assistant placeholder changes after creation.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// ThinkingStartTime marks when a reasoning segment began streaming.
	ThinkingStartTime *time.Time `json:"thinkingStartTime,omitempty"`
	// ThinkingDuration is the reasoning time in milliseconds.
	ThinkingDuration int64 `json:"thinkingDuration,omitempty"`
}

// NewID mints a time-ordered unique id. UUIDv7 values are strictly
// increasing within the process, so later ids always sort after earlier ones.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewMessage builds a message with a fresh id.
func NewMessage(role Role, content string, attachments []Attachment) Message {
	return Message{
		ID:          NewID(),
		Role:        role,
		Content:     content,
		Attachments: cloneAttachments(attachments),
	}
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	out := m
	out.Attachments = cloneAttachments(m.Attachments)
	if m.ThinkingStartTime != nil {
		start := *m.ThinkingStartTime
		out.ThinkingStartTime = &start
	}
	return out
}

// CloneMessages deep-copies a message list.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, msg := range in {
		out[i] = msg.Clone()
	}
	return out
}

func cloneAttachments(in []Attachment) []Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]Attachment, len(in))
	copy(out, in)
	return out
}
