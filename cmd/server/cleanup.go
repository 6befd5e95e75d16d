package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/iliyamo/auth-core/internal/config"
	"github.com/iliyamo/auth-core/internal/database"
	"github.com/iliyamo/auth-core/internal/logging"
	"github.com/iliyamo/auth-core/internal/repository"
	"github.com/iliyamo/auth-core/internal/service"
)

// NewCleanupCmd creates the cleanup subcommand, a one-shot retention pass
// for cron jobs.
func NewCleanupCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired tokens and old login attempts once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			log := logging.New(cfg.Env)

			db, err := database.Open(cmd.Context(), cfg, 3, log)
			if err != nil {
				return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
			}
			defer func() { _ = db.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cleaner := service.NewCleaner(
				repository.NewRefreshTokenRepo(db),
				repository.NewResetTokenRepo(db),
				repository.NewLoginAttemptRepo(db),
				log, nil)
			res, err := cleaner.Run(ctx)
			out, _ := json.Marshal(res)
			cmd.Println(string(out))
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "upper bound for the whole pass")
	return cmd
}
