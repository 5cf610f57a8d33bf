package commands

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keshon/digmbot/internal/config"
	"github.com/keshon/digmbot/internal/state"
)

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persistent state and stored secrets",
	}

	cmd.AddCommand(
		newStateDumpCmd(),
		newStateSetTokenCmd(),
	)

	return cmd
}

func newStateDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the persistent state snapshot as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := state.OpenPersistent(cfg.StatePath)
			if err != nil {
				return fmt.Errorf("open state: %w", err)
			}
			defer store.Close()

			data, err := store.Dump()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newStateSetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token [token]",
		Short: "Store the Discord token in the OS keyring",
		Long: `Store the Discord token in the OS keyring. It is used when neither the
config file nor DISCORD_TOKEN provide one. Without an argument the token is
read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				fmt.Fprint(cmd.ErrOrStderr(), "Discord token: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return errors.New("empty token")
			}
			if err := config.StoreToken(token); err != nil {
				return fmt.Errorf("store token in keyring: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Token stored.")
			return nil
		},
	}
}
