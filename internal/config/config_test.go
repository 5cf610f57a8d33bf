package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty prefix", func(c *Config) { c.General.CommandPrefix = "" }},
		{"negative backfill", func(c *Config) { c.History.ChannelBackfillMessageCount = -1 }},
		{"zero max history", func(c *Config) { c.History.ChannelMaxMessageCount = 0 }},
		{"negative max history", func(c *Config) { c.History.ChannelMaxMessageCount = -5 }},
		{"negative notification window", func(c *Config) { c.General.NotificationLimitSeconds = -1 }},
		{"zero context size", func(c *Config) { c.LLMReply.ContextSize = 0 }},
		{"temperature too high", func(c *Config) { c.LLMPermissionDenied.Temperature = 2.5 }},
		{"missing model", func(c *Config) { c.LLMReply.ModelName = "" }},
		{"missing chat url", func(c *Config) { c.LLMGeneral.ChatURL = "" }},
		{"zero request rate", func(c *Config) { c.LLMGeneral.RequestsPerSecond = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestTemplateInheritsChatURL(t *testing.T) {
	cfg := Default()
	cfg.LLMGeneral.ChatURL = "http://general/api/chat"
	cfg.LLMPermissionDenied.ChatURL = "http://denied/api/chat"

	reply, ok := cfg.Template(TemplateReply)
	if !ok {
		t.Fatal("llm_reply template not found")
	}
	if reply.ChatURL != "http://general/api/chat" {
		t.Errorf("llm_reply chat url = %q, want general url", reply.ChatURL)
	}

	denied, _ := cfg.Template(TemplatePermissionDenied)
	if denied.ChatURL != "http://denied/api/chat" {
		t.Errorf("llm_permission_denied chat url = %q, want own url", denied.ChatURL)
	}

	if _, ok := cfg.Template("nope"); ok {
		t.Error("unknown template key resolved")
	}
}

func TestIsOwner(t *testing.T) {
	cfg := Default()
	cfg.General.BotOwners = []string{"111", "222"}

	tests := []struct {
		id   string
		want bool
	}{
		{"111", true},
		{"222", true},
		{"333", false},
		{"11", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := cfg.IsOwner(tt.id); got != tt.want {
			t.Errorf("IsOwner(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digmbot.yaml")
	body := `
discord_token: from-file
state_path: ` + filepath.Join(dir, "state.json") + `
general:
  command_prefix: "!"
  bot_owners: ["42"]
  notification_limit_seconds: 60
history:
  channel_backfill_message_count: 10
  channel_max_message_count: 20
llm_reply:
  model_name: file-model
  context_size: 1000
  temperature: 0.5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DISCORD_TOKEN", "from-env")
	t.Setenv("LLM_REPLY_MODEL_NAME", "env-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DiscordToken != "from-env" {
		t.Errorf("token = %q, want env override", cfg.DiscordToken)
	}
	if cfg.General.CommandPrefix != "!" {
		t.Errorf("prefix = %q, want %q", cfg.General.CommandPrefix, "!")
	}
	if !cfg.IsOwner("42") {
		t.Error("owner 42 not loaded from file")
	}
	if cfg.LLMReply.ModelName != "env-model" {
		t.Errorf("model = %q, want env override", cfg.LLMReply.ModelName)
	}
	if cfg.LLMReply.ContextSize != 1000 {
		t.Errorf("context size = %d, want 1000", cfg.LLMReply.ContextSize)
	}
	if cfg.NotificationLimit() != time.Minute {
		t.Errorf("notification limit = %v, want 1m", cfg.NotificationLimit())
	}
	// untouched sections keep their defaults
	if cfg.LLMPermissionDenied.ContextSize != Default().LLMPermissionDenied.ContextSize {
		t.Errorf("denied context size = %d, want default", cfg.LLMPermissionDenied.ContextSize)
	}
}

func TestLoadRejectsNegativeHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digmbot.yaml")
	body := "history:\n  channel_max_message_count: -3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCORD_TOKEN", "x")

	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load() error = %v, want ErrInvalid", err)
	}
}
