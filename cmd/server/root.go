package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the auth server CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth-server",
		Short: "Authentication and session security core",
		Long: `auth-server issues and rotates session tokens, enforces login lockout,
keeps the access-token denylist and runs the password reset flow.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCleanupCmd())
	cmd.AddCommand(NewWorkerCmd())

	return cmd
}
