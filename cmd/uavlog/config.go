package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jxucoder/uavlog/internal/config"
)

// configKey describes a single configuration value.
type configKey struct {
	Key    string
	Desc   string
	Secret bool
}

// allConfigKeys lists the values shown by `config show`, in display order.
var allConfigKeys = []configKey{
	{"OPENAI_API_KEY", "OpenAI API key", true},
	{"ANTHROPIC_API_KEY", "Anthropic API key", true},
	{"GOOGLE_API_KEY", "Google Gemini API key", true},
	{"TELEGRAM_BOT_TOKEN", "Telegram bot token (from @BotFather)", true},
	{"UAVLOG_ADDR", "Server listen address", false},
	{"UAVLOG_SERVER", "API base URL used by the CLI and Telegram bot", false},
	{"UAVLOG_WATCH_DIR", "Folder watched for new flight logs", false},
	{"UAVLOG_LOG_LEVEL", "Log level (debug, info, warn, error)", false},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage uavlog configuration",
	Long: `Manage uavlog configuration (API keys, tokens, paths).

Values are stored in <data dir>/config.env and can be overridden by
environment variables.

  uavlog config set KEY VALUE      Set a single config value
  uavlog config show               Show current configuration
  uavlog config path               Print config file path`,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Long: `Set a single configuration value. Example:
  uavlog config set OPENAI_API_KEY sk-xxxxxxxxxxxx`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display all configured values. Secrets are masked.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.FilePath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigSet sets a single key=value in the config file.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := strings.ToUpper(args[0]), args[1]
	if !slices.Contains(config.EnvKeys(), key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	if err := config.SetFileValue(key, value); err != nil {
		return err
	}

	display := value
	if isSecret(key) {
		display = maskSecret(value)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, display)
	return nil
}

// runConfigShow displays the current effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	fileValues, err := config.ReadFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Config file: %s\n\n", config.FilePath())
	for _, ck := range allConfigKeys {
		value := os.Getenv(ck.Key)
		source := ""
		if value != "" {
			source = " (from env)"
		} else if v := fileValues[ck.Key]; v != "" {
			value = v
			source = " (from config file)"
		}

		display := "(not set)"
		if value != "" {
			display = value
			if ck.Secret {
				display = maskSecret(value)
			}
		}
		fmt.Fprintf(out, "  %-20s %s%s\n", ck.Key, display, source)
	}
	return nil
}

func isSecret(key string) bool {
	for _, ck := range allConfigKeys {
		if ck.Key == key {
			return ck.Secret
		}
	}
	return strings.HasSuffix(key, "_KEY") || strings.HasSuffix(key, "_TOKEN")
}

// maskSecret masks a secret string, showing only the first 4 and last 4 characters.
func maskSecret(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
