package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/iliyamo/auth-core/internal/config"
	"github.com/iliyamo/auth-core/internal/handler"
	"github.com/iliyamo/auth-core/internal/logging"
	"github.com/iliyamo/auth-core/internal/middleware"
	"github.com/iliyamo/auth-core/internal/router"
)

type serveOptions struct {
	cleanupInterval time.Duration
	dbAttempts      uint64
	shutdownTimeout time.Duration
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.  The retention cleanup runs in the background at
--cleanup-interval; SIGINT or SIGTERM trigger a graceful shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.cleanupInterval, "cleanup-interval", 24*time.Hour, "interval between retention cleanups (0 disables)")
	cmd.Flags().Uint64Var(&opts.dbAttempts, "db-attempts", 10, "database pings before giving up at boot")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	log := logging.New(cfg.Env)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, opts.dbAttempts)
	if err != nil {
		logging.LogError(log, "startup failed", err)
		return err
	}

	e := newServer(a, config.LoadRateLimitConfig())

	if opts.cleanupInterval > 0 {
		go a.cleaner.Schedule(ctx, opts.cleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
	defer cancel()
	if serr := e.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", "error", serr)
	}
	a.Close(shutdownCtx)

	if err != nil {
		return oops.Code("SERVER_FAILED").Wrap(err)
	}
	log.Info("server stopped")
	return nil
}

// newServer builds the echo instance with every route registered.
func newServer(a *app, rl config.RateLimitConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(requestLogger(a.log))

	_, scripter := cacheClients(a.cache)
	sec := router.Security{
		Secret:    a.cfg.AuthSecret,
		Denylist:  a.blacklist,
		Limiter:   middleware.NewRateLimiter(rl, scripter, a.log),
		RateLimit: rl,
	}
	router.RegisterRoutes(e, a.readiness(), a.registry)
	router.RegisterAuth(e, handler.NewAuthHandler(a.auth, a.log), sec)
	router.RegisterAdmin(e, handler.NewAdminHandler(a.cleaner, a.log), sec)
	return e
}

// requestLogger writes one access log line per request.  Request bodies
// and headers are not logged; they carry passwords and tokens.
func requestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"ip", v.RemoteIP,
			}
			if v.Error != nil {
				log.Error("request", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	})
}
