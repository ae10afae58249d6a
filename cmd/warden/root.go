package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the warden CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Warden - single-session authentication service",
		Long: `Warden authenticates users and keeps at most one live session per
user across every API instance sharing its cache.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (YAML, default $XDG_CONFIG_HOME/warden/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewSessionsCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
