package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/auth-core/internal/model"
)

// LoginAttemptRepo appends and queries login_attempt rows.
type LoginAttemptRepo struct{ DB *sql.DB }

func NewLoginAttemptRepo(db *sql.DB) *LoginAttemptRepo { return &LoginAttemptRepo{DB: db} }

// Insert appends a.  CreatedAt is the attempt time the lockout math reads,
// so callers set it from their own clock.
func (r *LoginAttemptRepo) Insert(ctx context.Context, a *model.LoginAttempt) error {
	stampAudit(&a.AuditColumns)
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO login_attempt
		(id, email, ip_address, user_agent, successful, created_at, updated_at, active, created_by, updated_by)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Email, a.IPAddress, a.UserAgent, a.Successful, a.CreatedAt, a.UpdatedAt, a.Active, a.CreatedBy, a.UpdatedBy)
	return translate(err)
}

// CountFailedSince counts failed attempts for email at or after since.
func (r *LoginAttemptRepo) CountFailedSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM login_attempt WHERE email=? AND successful=0 AND created_at>=?",
		email, since.UTC()).Scan(&n)
	return n, err
}

// LatestFailed returns the most recent failed attempt for email.
func (r *LoginAttemptRepo) LatestFailed(ctx context.Context, email string) (model.LoginAttempt, error) {
	var a model.LoginAttempt
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, ip_address, user_agent, successful, created_at, updated_at, active, created_by, updated_by
		FROM login_attempt WHERE email=? AND successful=0 ORDER BY created_at DESC LIMIT 1`, email).
		Scan(&a.ID, &a.Email, &a.IPAddress, &a.UserAgent, &a.Successful,
			&a.CreatedAt, &a.UpdatedAt, &a.Active, &a.CreatedBy, &a.UpdatedBy)
	return a, translate(err)
}

// DeleteFailed removes the failed attempts of email, resetting its lockout
// counter.
func (r *LoginAttemptRepo) DeleteFailed(ctx context.Context, email string) (int64, error) {
	return deleteWhere(ctx, r.DB, "DELETE FROM login_attempt WHERE email=? AND successful=0", email)
}

// DeleteOlderThan removes attempts created before cutoff.
func (r *LoginAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteWhere(ctx, r.DB, "DELETE FROM login_attempt WHERE created_at<?", cutoff.UTC())
}
