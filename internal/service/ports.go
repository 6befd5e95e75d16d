package service

import (
	"context"
	"time"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/queue"
)

// RequestContext carries who is calling and from where.  It is passed
// explicitly down every call chain.  UserID is empty for anonymous calls.
type RequestContext struct {
	UserID    string
	IP        string
	UserAgent string
}

// UserStore reads identities.  Lookups return repository.ErrNotFound for
// unknown or inactive users.
type UserStore interface {
	GetActiveByEmail(ctx context.Context, email string) (model.User, error)
	GetActiveByID(ctx context.Context, id string) (model.User, error)
}

// RefreshTokenRepository persists refresh tokens by digest.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *model.RefreshToken) error
	Rotate(ctx context.Context, presented string, now time.Time, next *model.RefreshToken, keepSession bool) error
	Revoke(ctx context.Context, token string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error)
}

// ResetTokenRepository persists password reset tokens by digest.
type ResetTokenRepository interface {
	Create(ctx context.Context, t *model.PasswordResetToken) error
	InvalidateUnused(ctx context.Context, userID string, now time.Time) (int64, error)
	Redeem(ctx context.Context, token string, now time.Time, passwordHash string) (string, error)
}

// LoginAttemptRepository appends and queries login attempts.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, a *model.LoginAttempt) error
	CountFailedSince(ctx context.Context, email string, since time.Time) (int, error)
	LatestFailed(ctx context.Context, email string) (model.LoginAttempt, error)
	DeleteFailed(ctx context.Context, email string) (int64, error)
}

// EventPublisher receives audit events and reset notifications.  Both are
// best effort: failures are logged by the caller and never fail a request.
type EventPublisher interface {
	PublishAudit(ctx context.Context, e queue.AuditEvent) error
	PublishPasswordReset(ctx context.Context, e queue.PasswordResetRequested) error
}

// clock returns now, or time.Now when now is nil.
func clock(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
