package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatdesk/internal/models"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change provider settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.store.Settings()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "provider\t%s\n", s.Provider)
		fmt.Fprintf(w, "model\t%s\n", s.SelectedModel)
		fmt.Fprintf(w, "local-url\t%s\n", s.LocalURL)
		for _, p := range models.Providers {
			if p == models.ProviderLocal {
				continue
			}
			fmt.Fprintf(w, "%s-key\t%s\n", p, maskKey(s.KeyFor(p)))
		}
		return w.Flush()
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <field>=<value>...",
	Short: "Change one or more settings",
	Long: `Change one or more settings. Fields:

  provider, model, local-url,
  openrouter-key, openai-key, gemini-key, deepseek-key, qwen-key

Keys may be given as $VAR to read them from the environment at send time.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseSettingsArgs(args)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		s, err := a.store.UpdateSettings(cmd.Context(), patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Provider %s, model %s\n", s.Provider, s.SelectedModel)
		return nil
	},
}

func parseSettingsArgs(args []string) (models.SettingsPatch, error) {
	var patch models.SettingsPatch
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			return patch, fmt.Errorf("expected field=value, got %q", arg)
		}
		v := value
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "provider":
			p := models.Provider(v)
			patch.Provider = &p
		case "model", "selected-model":
			patch.SelectedModel = &v
		case "local-url":
			patch.LocalURL = &v
		case "openrouter-key":
			patch.OpenRouterKey = &v
		case "openai-key":
			patch.OpenAIKey = &v
		case "gemini-key":
			patch.GeminiKey = &v
		case "deepseek-key":
			patch.DeepSeekKey = &v
		case "qwen-key":
			patch.QwenKey = &v
		default:
			return patch, fmt.Errorf("unknown settings field %q", field)
		}
	}
	return patch, nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case strings.HasPrefix(key, "$"):
		return key
	case len(key) <= 8:
		return "****"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
