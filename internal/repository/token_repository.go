package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/auth-core/internal/model"
)

// RefreshTokenRepo persists refresh tokens.  The token column stores the
// sha256 digest of the raw value; callers hash before every call.
type RefreshTokenRepo struct{ DB *sql.DB }

func NewRefreshTokenRepo(db *sql.DB) *RefreshTokenRepo { return &RefreshTokenRepo{DB: db} }

const insertRefreshToken = `INSERT INTO refresh_token
	(id, token, user_id, expires_at, revoked, session_id, device_info, user_agent, ip_address,
	 created_at, updated_at, active, created_by, updated_by)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// Create inserts t.  ID and the audit timestamps are filled in when empty.
func (r *RefreshTokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	return insertRefresh(ctx, r.DB, t)
}

func insertRefresh(ctx context.Context, db execer, t *model.RefreshToken) error {
	stampAudit(&t.AuditColumns)
	_, err := db.ExecContext(ctx, insertRefreshToken,
		t.ID, t.Token, t.UserID, t.ExpiresAt.UTC(), t.Revoked, t.SessionID, t.DeviceInfo, t.UserAgent, t.IPAddress,
		t.CreatedAt, t.UpdatedAt, t.Active, t.CreatedBy, t.UpdatedBy)
	return translate(err)
}

// Rotate revokes the row whose digest is presented and inserts next as its
// successor in one transaction.  The revoke is a conditional update on
// revoked=0 and expires_at>now, so of two concurrent callers presenting the
// same token only the first one gets a row affected; the other receives
// ErrNotFound and no successor is written for it.
//
// next.UserID is taken from the presented row.  When keepSession is set the
// presented row's session_id is carried forward as well.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, presented string, now time.Time, next *model.RefreshToken, keepSession bool) error {
	now = now.UTC()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_token SET revoked=1, updated_at=? WHERE token=? AND revoked=0 AND expires_at>?",
		now, presented, now)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}

	var userID, sessionID string
	if err := tx.QueryRowContext(ctx,
		"SELECT user_id, session_id FROM refresh_token WHERE token=? LIMIT 1", presented).
		Scan(&userID, &sessionID); err != nil {
		return translate(err)
	}
	next.UserID = userID
	if keepSession {
		next.SessionID = sessionID
	}
	if next.CreatedBy == "" {
		next.CreatedBy = userID
	}
	if err := insertRefresh(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

// Revoke marks the row with the given digest as revoked.  Absent or already
// revoked rows are not an error.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, token string, now time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_token SET revoked=1, updated_at=? WHERE token=? AND revoked=0",
		now.UTC(), token)
	return err
}

// RevokeAllForUser revokes every non-revoked row of the user and returns how
// many rows changed.
func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_token SET revoked=1, updated_at=?, updated_by=? WHERE user_id=? AND revoked=0",
		now.UTC(), userID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExpiredBefore hard-deletes rows that expired before cutoff.
func (r *RefreshTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return deleteWhere(ctx, r.DB, "DELETE FROM refresh_token WHERE expires_at<?", cutoff.UTC())
}

func deleteWhere(ctx context.Context, db execer, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// stampAudit fills the audit columns of a row about to be inserted.
func stampAudit(a *model.AuditColumns) {
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.Active = true
	if a.UpdatedBy == "" {
		a.UpdatedBy = a.CreatedBy
	}
}
