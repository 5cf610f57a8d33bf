// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Template keys understood by Template.
const (
	TemplateReply            = "llm_reply"
	TemplatePermissionDenied = "llm_permission_denied"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	DiscordToken string `yaml:"discord_token" env:"DISCORD_TOKEN"`
	StatePath    string `yaml:"state_path" env:"STATE_PATH"`

	General             General     `yaml:"general" envPrefix:"GENERAL_"`
	History             History     `yaml:"history" envPrefix:"HISTORY_"`
	LLMGeneral          LLMGeneral  `yaml:"llm_general" envPrefix:"LLM_"`
	LLMReply            Template    `yaml:"llm_reply" envPrefix:"LLM_REPLY_"`
	LLMPermissionDenied Template    `yaml:"llm_permission_denied" envPrefix:"LLM_DENIED_"`
	VcNotify            VcNotify    `yaml:"vc_notify" envPrefix:"VC_NOTIFY_"`
	Maintenance         Maintenance `yaml:"maintenance" envPrefix:"MAINTENANCE_"`
}

type General struct {
	CommandPrefix            string   `yaml:"command_prefix" env:"COMMAND_PREFIX"`
	BotOwners                []string `yaml:"bot_owners" env:"BOT_OWNERS" envSeparator:","`
	NotificationLimitSeconds int      `yaml:"notification_limit_seconds" env:"NOTIFICATION_LIMIT_SECONDS"`
}

type History struct {
	ChannelBackfillMessageCount int `yaml:"channel_backfill_message_count" env:"CHANNEL_BACKFILL_MESSAGE_COUNT"`
	ChannelMaxMessageCount      int `yaml:"channel_max_message_count" env:"CHANNEL_MAX_MESSAGE_COUNT"`
}

type LLMGeneral struct {
	ChatURL           string  `yaml:"chat_url" env:"CHAT_URL"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" env:"TIMEOUT_SECONDS"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// Template holds the generation settings for one prompt template.
// SystemPrompt may contain {bot} and {user} placeholders.
type Template struct {
	ChatURL      string  `yaml:"chat_url" env:"CHAT_URL"`
	ModelName    string  `yaml:"model_name" env:"MODEL_NAME"`
	SystemPrompt string  `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	ContextSize  int     `yaml:"context_size" env:"CONTEXT_SIZE"`
	Temperature  float64 `yaml:"temperature" env:"TEMPERATURE"`
}

type VcNotify struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

type Maintenance struct {
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
}

// Default returns a Config with every optional value filled in.
func Default() *Config {
	return &Config{
		StatePath: defaultStatePath(),
		General: General{
			CommandPrefix:            ";",
			NotificationLimitSeconds: 300,
		},
		History: History{
			ChannelBackfillMessageCount: 50,
			ChannelMaxMessageCount:      100,
		},
		LLMGeneral: LLMGeneral{
			ChatURL:           "http://localhost:11434/api/chat",
			TimeoutSeconds:    120,
			RequestsPerSecond: 2,
		},
		LLMReply: Template{
			ModelName:    "llama3.1",
			SystemPrompt: "You are {bot}, a member of a Discord server. Keep replies short. You are talking to {user}.",
			ContextSize:  4096,
			Temperature:  0.8,
		},
		LLMPermissionDenied: Template{
			ModelName:    "llama3.1",
			SystemPrompt: "You are {bot}. {user} just asked you to do something only your owners may ask for. Refuse in one or two sentences.",
			ContextSize:  2048,
			Temperature:  0.9,
		},
		VcNotify:    VcNotify{Enabled: true},
		Maintenance: Maintenance{Schedule: "@every 1m"},
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	if p := os.Getenv("DIGMBOT_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".digmbot.yaml"
	}
	return filepath.Join(home, ".config", "digmbot.yaml")
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "state.json"
	}
	return filepath.Join(home, ".config", "digmbot", "state.json")
}

// Load reads .env, the YAML file at path and the environment, in that order
// of increasing precedence, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, falling back to system environment variables")
	}

	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("[WARN] Config file %s not found, using defaults and environment", path)
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DiscordToken == "" {
		cfg.DiscordToken = TokenFromKeyring()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects malformed values instead of clamping them.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.StatePath != "", "state_path is empty")
	check(c.General.CommandPrefix != "", "general.command_prefix is empty")
	check(c.General.NotificationLimitSeconds >= 0, "general.notification_limit_seconds is negative (%d)", c.General.NotificationLimitSeconds)
	check(c.History.ChannelBackfillMessageCount >= 0, "history.channel_backfill_message_count is negative (%d)", c.History.ChannelBackfillMessageCount)
	check(c.History.ChannelMaxMessageCount > 0, "history.channel_max_message_count must be positive (%d)", c.History.ChannelMaxMessageCount)
	check(c.LLMGeneral.TimeoutSeconds >= 0, "llm_general.timeout_seconds is negative (%d)", c.LLMGeneral.TimeoutSeconds)
	check(c.LLMGeneral.RequestsPerSecond > 0, "llm_general.requests_per_second must be positive (%g)", c.LLMGeneral.RequestsPerSecond)

	if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
		check(false, "maintenance.schedule %q: %v", c.Maintenance.Schedule, err)
	}

	for _, key := range []string{TemplateReply, TemplatePermissionDenied} {
		t, _ := c.Template(key)
		check(t.ChatURL != "", "%s.chat_url is empty and llm_general.chat_url is not set", key)
		check(t.ModelName != "", "%s.model_name is empty", key)
		check(t.ContextSize > 0, "%s.context_size must be positive (%d)", key, t.ContextSize)
		check(t.Temperature >= 0 && t.Temperature <= 2, "%s.temperature out of range [0,2] (%g)", key, t.Temperature)
	}

	return errors.Join(errs...)
}

// Template returns the generation settings for key, with the general chat URL
// filled in when the template does not carry its own.
func (c *Config) Template(key string) (Template, bool) {
	var t Template
	switch key {
	case TemplateReply:
		t = c.LLMReply
	case TemplatePermissionDenied:
		t = c.LLMPermissionDenied
	default:
		return Template{}, false
	}
	if t.ChatURL == "" {
		t.ChatURL = c.LLMGeneral.ChatURL
	}
	return t, true
}

// IsOwner reports whether userID is one of the configured bot owners.
func (c *Config) IsOwner(userID string) bool {
	return slices.Contains(c.General.BotOwners, userID)
}

func (c *Config) NotificationLimit() time.Duration {
	return time.Duration(c.General.NotificationLimitSeconds) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMGeneral.TimeoutSeconds) * time.Second
}
