package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keshon/digmbot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
		Long: `Inspect the digmbot configuration.

Examples:
  digmbot config check
  digmbot config show`,
	}

	cmd.AddCommand(
		newConfigCheckCmd(),
		newConfigShowCmd(),
	)

	return cmd
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), summary(cfg))
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration, token redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.DiscordToken != "" {
				redacted.DiscordToken = "<redacted>"
			}
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func summary(cfg *config.Config) string {
	var b strings.Builder
	token := "missing"
	if cfg.DiscordToken != "" {
		token = "set"
	}
	fmt.Fprintln(&b, "Configuration is valid.")
	fmt.Fprintf(&b, "  token:          %s\n", token)
	fmt.Fprintf(&b, "  state:          %s\n", cfg.StatePath)
	fmt.Fprintf(&b, "  prefix:         %s\n", cfg.General.CommandPrefix)
	fmt.Fprintf(&b, "  owners:         %d\n", len(cfg.General.BotOwners))
	fmt.Fprintf(&b, "  history:        %d kept, %d backfilled\n", cfg.History.ChannelMaxMessageCount, cfg.History.ChannelBackfillMessageCount)
	fmt.Fprintf(&b, "  notify limit:   %v\n", cfg.NotificationLimit())
	for _, key := range []string{config.TemplateReply, config.TemplatePermissionDenied} {
		t, _ := cfg.Template(key)
		fmt.Fprintf(&b, "  %-22s %s @ %s (ctx %d, temp %g)\n", key+":", t.ModelName, t.ChatURL, t.ContextSize, t.Temperature)
	}
	return b.String()
}
