// Package config provides configuration management for uavlog.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the YAML config file location.
const PathEnvVar = "UAVLOG_CONFIG"

// DefaultConfigFile is the YAML file looked up in the working directory.
const DefaultConfigFile = "uavlog.yaml"

// Config holds all configuration for uavlog.
type Config struct {
	// Addr is the address the HTTP server listens on (e.g., ":8000").
	Addr string `koanf:"addr"`

	// DataDir is the directory for persistent data (SQLite DB, uploads).
	DataDir string `koanf:"data_dir"`

	// UploadDir is where uploaded logs are saved. Default: <data_dir>/uploads.
	UploadDir string `koanf:"upload_dir"`

	// WatchDir, when set, is scanned for new log files to ingest.
	WatchDir string `koanf:"watch_dir"`

	// WatchDebounce is how long a file must stay quiet before it is ingested.
	WatchDebounce time.Duration `koanf:"watch_debounce"`

	// MaxUploadSize caps upload bodies in bytes. Default: 100 MiB.
	MaxUploadSize int64 `koanf:"max_upload_size"`

	// AllowedExtensions lists accepted log file extensions.
	AllowedExtensions []string `koanf:"allowed_extensions"`

	// CORSOrigins lists origins allowed to call the API.
	CORSOrigins []string `koanf:"cors_origins"`

	// ServerURL is the API base URL used by the CLI and the Telegram bridge.
	ServerURL string `koanf:"server_url"`

	Log      LogConfig      `koanf:"log"`
	Memory   MemoryConfig   `koanf:"memory"`
	LLM      LLMConfig      `koanf:"llm"`
	Telegram TelegramConfig `koanf:"telegram"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MemoryConfig configures conversation memory retention.
type MemoryConfig struct {
	// Retention is how long an idle conversation is kept. Default: 30 days.
	Retention time.Duration `koanf:"retention"`
	// CleanupInterval is how often expired conversations are removed.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// LLMConfig holds provider credentials and model overrides. The first
// provider with a key wins, in the order OpenAI, Anthropic, Google.
type LLMConfig struct {
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	GoogleAPIKey    string `koanf:"google_api_key"`
	OpenAIModel     string `koanf:"openai_model"`
	AnthropicModel  string `koanf:"anthropic_model"`
	GeminiModel     string `koanf:"gemini_model"`
	MaxTokens       int    `koanf:"max_tokens"`
}

// TelegramConfig configures the optional Telegram bridge (long polling, no
// public URL needed).
type TelegramConfig struct {
	// BotToken is the token from @BotFather.
	BotToken string `koanf:"bot_token"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:              ":8000",
		DataDir:           DefaultDataDir(),
		WatchDebounce:     2 * time.Second,
		MaxUploadSize:     100 << 20,
		AllowedExtensions: []string{".bin", ".log"},
		CORSOrigins:       []string{"http://localhost:3000", "http://localhost:8080"},
		ServerURL:         "http://localhost:8000/api",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Memory: MemoryConfig{
			Retention:       30 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		LLM: LLMConfig{
			MaxTokens: 700,
		},
	}
}

// envKeys maps environment variables to config keys. Unlisted variables are
// ignored.
var envKeys = map[string]string{
	"UAVLOG_ADDR":               "addr",
	"UAVLOG_DATA_DIR":           "data_dir",
	"UAVLOG_UPLOAD_DIR":         "upload_dir",
	"UAVLOG_WATCH_DIR":          "watch_dir",
	"UAVLOG_WATCH_DEBOUNCE":     "watch_debounce",
	"UAVLOG_MAX_UPLOAD_SIZE":    "max_upload_size",
	"UAVLOG_CORS_ORIGINS":       "cors_origins",
	"UAVLOG_ALLOWED_EXTENSIONS": "allowed_extensions",
	"UAVLOG_SERVER":             "server_url",
	"UAVLOG_LOG_LEVEL":          "log.level",
	"UAVLOG_LOG_FORMAT":         "log.format",
	"UAVLOG_MEMORY_RETENTION":   "memory.retention",
	"UAVLOG_CLEANUP_INTERVAL":   "memory.cleanup_interval",
	"OPENAI_API_KEY":            "llm.openai_api_key",
	"ANTHROPIC_API_KEY":         "llm.anthropic_api_key",
	"GOOGLE_API_KEY":            "llm.google_api_key",
	"UAVLOG_OPENAI_MODEL":       "llm.openai_model",
	"UAVLOG_ANTHROPIC_MODEL":    "llm.anthropic_model",
	"UAVLOG_GEMINI_MODEL":       "llm.gemini_model",
	"UAVLOG_LLM_MAX_TOKENS":     "llm.max_tokens",
	"TELEGRAM_BOT_TOKEN":        "telegram.bot_token",
}

// EnvKeys returns the recognized environment variable names.
func EnvKeys() []string {
	keys := make([]string, 0, len(envKeys))
	for k := range envKeys {
		keys = append(keys, k)
	}
	return keys
}

// Load builds a Config from defaults, the optional YAML file and the
// environment, in increasing order of precedence. A .env file in the working
// directory and <data_dir>/config.env are read first; variables already set
// in the environment win over both.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := configFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	for _, dir := range []string{cfg.DataDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return cfg, nil
}

// loadEnvFiles sets variables from ./.env and <data_dir>/config.env without
// overriding anything already in the environment.
func loadEnvFiles() error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading .env: %w", err)
	}
	dataDir := os.Getenv("UAVLOG_DATA_DIR")
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	path := filepath.Join(dataDir, "config.env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func configFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// envValue maps a recognized, non-empty variable to its config key. List
// values are comma-separated.
func envValue(name, value string) (string, any) {
	key, ok := envKeys[name]
	if !ok || value == "" {
		return "", nil
	}
	if key == "allowed_extensions" || key == "cors_origins" {
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		return key, parts
	}
	return key, value
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max_upload_size must be positive, got %d", c.MaxUploadSize)
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("allowed_extensions must not be empty")
	}
	for _, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("allowed extension %q must start with a dot", ext)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "uavlog.db")
}

// TelegramEnabled returns true if the Telegram bot is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != ""
}

// WatchEnabled returns true if a watch folder is configured.
func (c *Config) WatchEnabled() bool {
	return c.WatchDir != ""
}

// FilePath returns <data_dir>/config.env, the file managed by
// `uavlog config set`.
func FilePath() string {
	if d := os.Getenv("UAVLOG_DATA_DIR"); d != "" {
		return filepath.Join(d, "config.env")
	}
	return filepath.Join(DefaultDataDir(), "config.env")
}

// ReadFile returns the key/value pairs stored in the config file. A missing
// file yields an empty map.
func ReadFile() (map[string]string, error) {
	vals, err := godotenv.Read(FilePath())
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return vals, err
}

// SetFileValue stores key=value in the config file, creating it if needed.
func SetFileValue(key, value string) error {
	vals, err := ReadFile()
	if err != nil {
		return err
	}
	vals[key] = value
	path := FilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := godotenv.Write(vals, path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// DefaultDataDir returns ~/.uavlog, or .uavlog when there is no home
// directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".uavlog"
	}
	return filepath.Join(home, ".uavlog")
}
