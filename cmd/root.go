package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"chatdesk/internal/config"
	"chatdesk/internal/observability"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatdesk",
	Short: "A local chat client for hosted and local LLM providers",
	Long: `chatdesk keeps a local history of LLM conversations and streams answers
from OpenRouter, OpenAI, Gemini, DeepSeek, Qwen or a local OpenAI-compatible server.

Run "chatdesk serve" for the desktop window API, or use the chat and sessions
commands directly from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile = configPath(cfgFile)
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		observability.Setup(os.Stderr, cfg.Log.Format, cfg.Log.Level)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

// configPath falls back to the per-user config file when it exists, so the
// watcher in serve has a concrete file to follow.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(config.EnvPrefix + "_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat(config.DefaultPath()); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return config.DefaultPath()
	}
	return ""
}
