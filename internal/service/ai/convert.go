package ai

import (
	"chatdesk/internal/models"

	"github.com/cloudwego/eino/schema"
)

// toSchemaMessages converts history into eino messages. Messages without
// attachments are sent as plain text; with attachments they become a text
// part followed by one image part per image attachment. Other attachment
// kinds are not sent.
func toSchemaMessages(history []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		role := schema.User
		if msg.Role == models.RoleAssistant {
			role = schema.Assistant
		}
		if len(msg.Attachments) == 0 {
			out = append(out, &schema.Message{Role: role, Content: msg.Content})
			continue
		}
		parts := []schema.ChatMessagePart{{
			Type: schema.ChatMessagePartTypeText,
			Text: msg.Content,
		}}
		for _, att := range msg.Attachments {
			if !att.IsImage() {
				continue
			}
			parts = append(parts, schema.ChatMessagePart{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: att.Content},
			})
		}
		out = append(out, &schema.Message{Role: role, MultiContent: parts})
	}
	return out
}
