package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Retention periods after which expired rows are deleted.
const (
	RefreshTokenRetention = 30 * 24 * time.Hour
	ResetTokenRetention   = 7 * 24 * time.Hour
	LoginAttemptRetention = 30 * 24 * time.Hour
)

// ExpiredPurger deletes rows that expired before a cutoff.
type ExpiredPurger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AttemptPurger deletes login attempts created before a cutoff.
type AttemptPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupResult counts the rows removed by one run.
type CleanupResult struct {
	RefreshTokens int64 `json:"refreshTokens"`
	ResetTokens   int64 `json:"resetTokens"`
	LoginAttempts int64 `json:"loginAttempts"`
}

// Cleaner hard-deletes auth rows past their retention.
type Cleaner struct {
	refresh  ExpiredPurger
	reset    ExpiredPurger
	attempts AttemptPurger
	log      *slog.Logger
	now      func() time.Time
}

// NewCleaner returns a Cleaner.  now may be nil.
func NewCleaner(refresh, reset ExpiredPurger, attempts AttemptPurger, log *slog.Logger, now func() time.Time) *Cleaner {
	return &Cleaner{refresh: refresh, reset: reset, attempts: attempts, log: log, now: clock(now)}
}

// Run purges the three tables.  A failing table does not stop the others;
// the errors are joined.
func (c *Cleaner) Run(ctx context.Context) (CleanupResult, error) {
	now := c.now()
	var res CleanupResult
	var errs []error

	n, err := c.refresh.DeleteExpiredBefore(ctx, now.Add(-RefreshTokenRetention))
	if err != nil {
		errs = append(errs, oops.With("table", "refresh_token").Wrap(err))
	}
	res.RefreshTokens = n

	n, err = c.reset.DeleteExpiredBefore(ctx, now.Add(-ResetTokenRetention))
	if err != nil {
		errs = append(errs, oops.With("table", "password_reset_token").Wrap(err))
	}
	res.ResetTokens = n

	n, err = c.attempts.DeleteOlderThan(ctx, now.Add(-LoginAttemptRetention))
	if err != nil {
		errs = append(errs, oops.With("table", "login_attempt").Wrap(err))
	}
	res.LoginAttempts = n

	if err := errors.Join(errs...); err != nil {
		return res, oops.Code(CodeCleanupFailed).Wrap(err)
	}
	c.log.Info("cleanup finished",
		"refresh_tokens", res.RefreshTokens,
		"reset_tokens", res.ResetTokens,
		"login_attempts", res.LoginAttempts)
	return res, nil
}

// Schedule runs the cleanup every interval until ctx is done.  Failures are
// logged and the next tick tries again.
func (c *Cleaner) Schedule(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Run(ctx); err != nil {
				c.log.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
