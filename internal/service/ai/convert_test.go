package ai

import (
	"testing"

	"chatdesk/internal/models"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

func TestToSchemaMessages(t *testing.T) {
	image := models.NewAttachment("cat.png", "image/png", []byte("png-bytes"))
	audio := models.NewAttachment("note.webm", "audio/webm", []byte("audio"))
	history := []models.Message{
		models.NewMessage(models.RoleUser, "hello", nil),
		models.NewMessage(models.RoleAssistant, "hi there", nil),
		models.NewMessage(models.RoleUser, "look", []models.Attachment{image, audio}),
	}

	out := toSchemaMessages(history)
	require.Len(t, out, 3)

	require.Equal(t, schema.User, out[0].Role)
	require.Equal(t, "hello", out[0].Content)
	require.Empty(t, out[0].MultiContent)

	require.Equal(t, schema.Assistant, out[1].Role)
	require.Equal(t, "hi there", out[1].Content)

	parts := out[2].MultiContent
	require.Len(t, parts, 2, "non-image attachments are omitted")
	require.Equal(t, schema.ChatMessagePartTypeText, parts[0].Type)
	require.Equal(t, "look", parts[0].Text)
	require.Equal(t, schema.ChatMessagePartTypeImageURL, parts[1].Type)
	require.Equal(t, image.Content, parts[1].ImageURL.URL)
}
