// Package commands implements the digmbot command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/keshon/digmbot/internal/config"
)

// NewRootCmd builds the root command. Without a subcommand it runs the bot.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "digmbot",
		Short: "Plugin-driven Discord bot",
		Long: `digmbot connects to Discord and runs every event through an ordered
chain of plugins: commands, voice notifications, rivals ratings and LLM replies.

Examples:
  digmbot
  digmbot run --config ./digmbot.yaml
  digmbot config check
  digmbot state dump`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newConfigCmd(),
		newStateCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML config (default $DIGMBOT_CONFIG or ~/.config/digmbot.yaml)")

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	return config.Load(path)
}
