package service

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/repository"
)

// Lockout parameters.
const (
	MaxFailedAttempts = 5
	LockoutWindow     = 15 * time.Minute
	LockoutDuration   = 30 * time.Minute
)

// LockStatus is the outcome of a lockout check.
type LockStatus struct {
	Locked    bool
	Remaining time.Duration
}

// LoginAttemptGuard records login attempts and decides whether an email is
// locked out.  Checking and recording are separate calls: two concurrent
// logins may both pass the check before either records its failure.
type LoginAttemptGuard struct {
	attempts LoginAttemptRepository
	now      func() time.Time
}

// NewLoginAttemptGuard returns a guard over attempts.  now may be nil.
func NewLoginAttemptGuard(attempts LoginAttemptRepository, now func() time.Time) *LoginAttemptGuard {
	return &LoginAttemptGuard{attempts: attempts, now: clock(now)}
}

// IsLocked counts failures inside the window.  From MaxFailedAttempts on,
// the email stays locked until LockoutDuration after its latest failure.
// Old failure rows are not pruned here.
func (g *LoginAttemptGuard) IsLocked(ctx context.Context, email string) (LockStatus, error) {
	now := g.now()
	n, err := g.attempts.CountFailedSince(ctx, email, now.Add(-LockoutWindow))
	if err != nil {
		return LockStatus{}, oops.Code(CodeLoginFailed).
			With("operation", "count failed attempts").
			Wrap(err)
	}
	if n < MaxFailedAttempts {
		return LockStatus{}, nil
	}

	last, err := g.attempts.LatestFailed(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return LockStatus{}, nil
	}
	if err != nil {
		return LockStatus{}, oops.Code(CodeLoginFailed).
			With("operation", "latest failed attempt").
			Wrap(err)
	}

	end := last.CreatedAt.Add(LockoutDuration)
	if now.Before(end) {
		return LockStatus{Locked: true, Remaining: end.Sub(now)}, nil
	}
	return LockStatus{}, nil
}

// RecordAttempt appends an attempt.  A success also deletes the email's
// failed rows so a fresh window starts.
func (g *LoginAttemptGuard) RecordAttempt(ctx context.Context, email string, successful bool, rc RequestContext) error {
	a := &model.LoginAttempt{
		Email:      email,
		IPAddress:  rc.IP,
		UserAgent:  rc.UserAgent,
		Successful: successful,
	}
	a.CreatedAt = g.now()
	a.CreatedBy = rc.UserID
	if err := g.attempts.Insert(ctx, a); err != nil {
		return oops.Code(CodeLoginFailed).
			With("operation", "record attempt").
			Wrap(err)
	}
	if !successful {
		return nil
	}
	if _, err := g.attempts.DeleteFailed(ctx, email); err != nil {
		return oops.Code(CodeLoginFailed).
			With("operation", "clear failed attempts").
			Wrap(err)
	}
	return nil
}

// RecentFailures returns the number of failures inside the window.
func (g *LoginAttemptGuard) RecentFailures(ctx context.Context, email string) (int, error) {
	n, err := g.attempts.CountFailedSince(ctx, email, g.now().Add(-LockoutWindow))
	if err != nil {
		return 0, oops.Code(CodeLoginFailed).
			With("operation", "count failed attempts").
			Wrap(err)
	}
	return n, nil
}
