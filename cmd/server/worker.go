package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/iliyamo/auth-core/internal/config"
	"github.com/iliyamo/auth-core/internal/logging"
	"github.com/iliyamo/auth-core/internal/queue"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver password reset mails",
		Long: `Consume password reset events from the broker and send them through the
mail relay at EMAIL_SERVICE_URL.  Runs until SIGINT or SIGTERM.`,
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if cfg.EmailServiceURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("EMAIL_SERVICE_URL is required for the worker")
	}
	log := logging.New(cfg.Env)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := queue.NewResetMailConsumer(cfg.AMQPURL, queue.NewMailer(cfg.EmailServiceURL, cfg.EmailServiceKey), log)
	log.Info("worker started", "queue", queue.PasswordResetQueue)
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return oops.Code("WORKER_FAILED").Wrap(err)
	}
	log.Info("worker stopped")
	return nil
}
