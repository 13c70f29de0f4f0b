package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"chatdesk/internal/models"
)

// Export formats.
const (
	FormatMarkdown = "md"
	FormatText     = "txt"
)

// Export is a rendered file ready to be saved or downloaded.
type Export struct {
	Filename    string
	ContentType string
	Content     []byte
}

var unsafeFilenameChars = regexp.MustCompile(`(?i)[^a-z0-9]`)

// ExportSession renders a stored session as a markdown or plain text
// transcript. Any format other than "md" yields plain text.
func (s *Service) ExportSession(ctx context.Context, id, format string) (*Export, error) {
	session, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	if format != FormatMarkdown {
		format = FormatText
	}

	var b strings.Builder
	if format == FormatMarkdown {
		fmt.Fprintf(&b, "# %s\n\n", session.Title)
		for _, msg := range session.Messages {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", strings.ToUpper(string(msg.Role)), msg.Content)
		}
	} else {
		fmt.Fprintf(&b, "Chat: %s\n\n", session.Title)
		for _, msg := range session.Messages {
			fmt.Fprintf(&b, "%s:\n%s\n\n----------------\n\n", strings.ToUpper(string(msg.Role)), msg.Content)
		}
	}

	contentType := "text/plain; charset=utf-8"
	if format == FormatMarkdown {
		contentType = "text/markdown; charset=utf-8"
	}
	return &Export{
		Filename:    ExportFilename(session.Title, format),
		ContentType: contentType,
		Content:     []byte(b.String()),
	}, nil
}

// ExportFilename derives a file name from a session title.
func ExportFilename(title, ext string) string {
	return strings.ToLower(unsafeFilenameChars.ReplaceAllString(title, "_")) + "." + ext
}

// ExportAllSessions renders every session as one pretty-printed JSON array.
func (s *Service) ExportAllSessions(ctx context.Context) (*Export, error) {
	data, err := json.MarshalIndent(s.Sessions(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sessions: %w", err)
	}
	return &Export{
		Filename:    fmt.Sprintf("all_chats_backup_%s.json", time.Now().Format("2006-01-02")),
		ContentType: "application/json",
		Content:     data,
	}, nil
}

// ImportSessions restores sessions from a bulk export. Sessions whose id is
// already stored are replaced; new ones are added in file order ahead of
// the existing ones. When an id repeats inside the backup the later entry
// wins. The live conversation is never replaced: an entry for the current
// session only updates its title and archived flag. It returns the number
// of distinct sessions imported.
func (s *Service) ImportSessions(ctx context.Context, data []byte) (int, error) {
	var incoming []models.Session
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("decode backup: %w", err)
	}
	if len(incoming) == 0 {
		return 0, nil
	}
	var imported int
	err := s.mutate(ctx, func(st *models.State) error {
		var added []models.Session
		seen := make(map[string]int, len(incoming))
		for _, session := range incoming {
			if session.ID == "" {
				session.ID = models.NewID()
			}
			if session.Messages == nil {
				session.Messages = []models.Message{}
			}
			if session.ID == st.CurrentSessionID && len(st.Messages) > 0 {
				session.Messages = models.CloneMessages(st.Messages)
			}
			if i, ok := seen[session.ID]; ok && i >= 0 {
				added[i] = session
				continue
			}
			if idx := st.SessionIndex(session.ID); idx >= 0 {
				st.Sessions[idx] = session
				seen[session.ID] = -1
				continue
			}
			seen[session.ID] = len(added)
			added = append(added, session)
		}
		st.Sessions = append(added, st.Sessions...)
		imported = len(seen)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}
