package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/auth-core/internal/model"
)

// ResetTokenRepo persists password reset tokens by digest.
type ResetTokenRepo struct{ DB *sql.DB }

func NewResetTokenRepo(db *sql.DB) *ResetTokenRepo { return &ResetTokenRepo{DB: db} }

// Create inserts t.
func (r *ResetTokenRepo) Create(ctx context.Context, t *model.PasswordResetToken) error {
	stampAudit(&t.AuditColumns)
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO password_reset_token
		(id, token, user_id, expires_at, used, created_at, updated_at, active, created_by, updated_by)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Token, t.UserID, t.ExpiresAt.UTC(), t.Used, t.CreatedAt, t.UpdatedAt, t.Active, t.CreatedBy, t.UpdatedBy)
	return translate(err)
}

// InvalidateUnused marks every unused token of the user as used and returns
// how many rows changed.
func (r *ResetTokenRepo) InvalidateUnused(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE password_reset_token SET used=1, updated_at=? WHERE user_id=? AND used=0",
		now.UTC(), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Redeem consumes the token with the given digest and replaces the owner's
// password hash in the same transaction.  The consume is a conditional
// update on used=0 and expires_at>now, so a token authorizes at most one
// password change.  Absent, expired and used tokens return ErrNotFound, as
// does a token whose user no longer exists.
func (r *ResetTokenRepo) Redeem(ctx context.Context, token string, now time.Time, passwordHash string) (string, error) {
	now = now.UTC()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE password_reset_token SET used=1, updated_at=?, updated_by=user_id WHERE token=? AND used=0 AND expires_at>?",
		now, token, now)
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", err
	} else if n == 0 {
		return "", ErrNotFound
	}

	var userID string
	if err := tx.QueryRowContext(ctx,
		"SELECT user_id FROM password_reset_token WHERE token=? LIMIT 1", token).Scan(&userID); err != nil {
		return "", translate(err)
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=? WHERE id=? AND active=1",
		passwordHash, now, userID)
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", err
	} else if n == 0 {
		return "", ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return userID, nil
}

// DeleteExpiredBefore hard-deletes tokens that expired before cutoff.
func (r *ResetTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteWhere(ctx, r.DB, "DELETE FROM password_reset_token WHERE expires_at<?", cutoff.UTC())
}
