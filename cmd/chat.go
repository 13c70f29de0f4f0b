package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"chatdesk/internal/conversation"
	"chatdesk/internal/models"
	"chatdesk/internal/thought"
)

var (
	chatAttachments  []string
	chatNewSession   bool
	chatShowThinking bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message in the current conversation",
	Long: `Send a message in the current conversation and stream the answer.

The message is read from stdin when no argument is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if text == "" && len(chatAttachments) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = strings.TrimSpace(string(data))
		}

		var attachments []models.Attachment
		for _, path := range chatAttachments {
			att, err := models.AttachmentFromFile(path)
			if err != nil {
				return err
			}
			attachments = append(attachments, att)
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if chatNewSession {
			if err := a.store.CreateNewChat(ctx); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		printer := &answerPrinter{w: out, raw: chatShowThinking}
		outcome, err := a.ctrl.SendMessage(ctx, conversation.SendRequest{
			Text:        text,
			Attachments: attachments,
			OnDelta:     printer.update,
		})
		if errors.Is(err, conversation.ErrEmptySubmission) {
			return errors.New("nothing to send: give a message or --attach a file")
		}
		if err != nil {
			if outcome != nil && outcome.Error != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), outcome.Error.Content)
			}
			return err
		}
		printer.finish(outcome.Placeholder.Content)
		return nil
	},
}

// answerPrinter writes the visible answer as it grows. Reasoning is hidden
// unless raw is set.
type answerPrinter struct {
	w       io.Writer
	raw     bool
	printed string
}

func (p *answerPrinter) update(delta, content string) error {
	if p.raw {
		_, err := io.WriteString(p.w, delta)
		p.printed = content
		return err
	}
	visible := thought.Extract(content).Content
	if !strings.HasPrefix(visible, p.printed) {
		// a marker was completed after its prefix was shown; fixed up in finish
		return nil
	}
	_, err := io.WriteString(p.w, visible[len(p.printed):])
	p.printed = visible
	return err
}

func (p *answerPrinter) finish(content string) {
	final := content
	if !p.raw {
		final = thought.Extract(content).Content
	}
	if final != p.printed {
		fmt.Fprint(p.w, "\n\n"+final)
	}
	fmt.Fprintln(p.w)
}

func init() {
	chatCmd.Flags().StringSliceVarP(&chatAttachments, "attach", "a", nil, "file to attach (repeatable)")
	chatCmd.Flags().BoolVarP(&chatNewSession, "new", "n", false, "start a new conversation first")
	chatCmd.Flags().BoolVar(&chatShowThinking, "show-thinking", false, "print reasoning segments as they stream")
	rootCmd.AddCommand(chatCmd)
}
