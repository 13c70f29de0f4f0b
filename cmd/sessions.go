package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"chatdesk/internal/models"
	"chatdesk/internal/service/assistant"
	"chatdesk/internal/thought"
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
	Long: `Manage conversation sessions including listing, loading, archiving,
exporting and deleting sessions.

Session ids can be given in full, as a unique prefix of at least 4 characters,
or as "latest".`,
}

var sessionsShowArchived bool

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		current := a.store.CurrentSessionID()
		var shown int
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tDATE\tMESSAGES\tTITLE")
		for _, s := range a.store.Sessions() {
			if s.Archived != sessionsShowArchived {
				continue
			}
			marker := ""
			if s.ID == current {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", marker, shortID(s.ID), s.Date.Format("2006-01-02 15:04"), len(s.Messages), s.DisplayTitle())
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.resolveSessionID(args[0])
		if err != nil {
			return err
		}
		session, err := a.store.Session(id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session: %s\n", session.ID)
		fmt.Fprintf(out, "Title: %s\n", session.DisplayTitle())
		fmt.Fprintf(out, "Date: %s\n", session.Date.Format("2006-01-02 15:04:05"))
		if session.Archived {
			fmt.Fprintln(out, "Archived: yes")
		}
		fmt.Fprintln(out)
		for _, msg := range session.Messages {
			fmt.Fprintf(out, "[%s]\n", strings.ToUpper(string(msg.Role)))
			content := msg.Content
			if msg.Role == models.RoleAssistant {
				res := thought.Extract(msg.Content)
				if res.Thought != "" {
					fmt.Fprintf(out, "(thinking, %dms)\n", msg.ThinkingDuration)
				}
				content = res.Content
			}
			fmt.Fprintln(out, content)
			for _, att := range msg.Attachments {
				fmt.Fprintf(out, "  attachment: %s (%s)\n", att.Name, att.MimeType)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "File the current conversation and start a new one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.store.CreateNewChat(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started session %s\n", a.store.CurrentSessionID())
		return nil
	},
}

// sessionAction builds a command applying one store operation to a session.
func sessionAction(use, short, done string, action func(*assistant.Service, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			id, err := a.resolveSessionID(args[0])
			if err != nil {
				return err
			}
			if err := action(a.store, cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", done, id)
			return nil
		},
	}
}

var (
	exportFormat string
	exportOutput string
)

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a session as markdown or text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		id, err := a.resolveSessionID(args[0])
		if err != nil {
			return err
		}
		out, err := a.store.ExportSession(cmd.Context(), id, exportFormat)
		if err != nil {
			return err
		}
		return writeExport(cmd, out)
	},
}

var sessionsExportAllCmd = &cobra.Command{
	Use:   "export-all",
	Short: "Back up every session to one JSON file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		out, err := a.store.ExportAllSessions(cmd.Context())
		if err != nil {
			return err
		}
		return writeExport(cmd, out)
	},
}

// writeExport writes to --output, "-" for stdout, or the suggested file
// name in the working directory.
func writeExport(cmd *cobra.Command, out *assistant.Export) error {
	path := exportOutput
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(out.Content)
		return err
	}
	if path == "" {
		path = out.Filename
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, out.Filename)
	}
	if err := os.WriteFile(path, out.Content, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

var sessionsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import sessions from a JSON backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read backup: %w", err)
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := a.store.ImportSessions(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d sessions\n", n)
		return nil
	},
}

var sessionsCopyCmd = &cobra.Command{
	Use:   "copy [id]",
	Short: "Copy the last answer of a session to the clipboard",
	Long: `Copy the last assistant answer to the clipboard, without its reasoning.

Without an id the current conversation is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		messages := a.store.Messages()
		if len(args) == 1 {
			id, err := a.resolveSessionID(args[0])
			if err != nil {
				return err
			}
			session, err := a.store.Session(id)
			if err != nil {
				return err
			}
			messages = session.Messages
		}
		answer, ok := lastAnswer(messages)
		if !ok {
			return fmt.Errorf("no assistant answer to copy")
		}
		if err := clipboard.WriteAll(answer); err != nil {
			return fmt.Errorf("write clipboard: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard.")
		return nil
	},
}

func lastAnswer(messages []models.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != models.RoleAssistant {
			continue
		}
		if content := thought.Extract(messages[i].Content).Content; content != "" {
			return content, true
		}
	}
	return "", false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsShowArchived, "archived", false, "list archived sessions instead")
	for _, c := range []*cobra.Command{sessionsExportCmd, sessionsExportAllCmd} {
		c.Flags().StringVarP(&exportOutput, "output", "o", "", `output file or directory, "-" for stdout`)
	}
	sessionsExportCmd.Flags().StringVarP(&exportFormat, "format", "f", assistant.FormatMarkdown, "md or txt")

	sessionsCmd.AddCommand(
		sessionsListCmd,
		sessionsShowCmd,
		sessionsNewCmd,
		sessionAction("load", "Make a session the current conversation", "Loaded", (*assistant.Service).LoadSession),
		sessionAction("delete", "Delete a session", "Deleted", (*assistant.Service).DeleteSession),
		sessionAction("archive", "Archive a session", "Archived", (*assistant.Service).ArchiveSession),
		sessionAction("unarchive", "Restore an archived session", "Unarchived", (*assistant.Service).UnarchiveSession),
		sessionsExportCmd,
		sessionsExportAllCmd,
		sessionsImportCmd,
		sessionsCopyCmd,
	)
	rootCmd.AddCommand(sessionsCmd)
}
