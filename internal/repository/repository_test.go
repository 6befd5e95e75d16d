package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/repository"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	cols := []string{"id", "email", "name", "user_type", "password_hash", "active", "created_at", "updated_at"}

	t.Run("looks users up by normalized email", func(t *testing.T) {
		db, mock := newMock(t)
		now := time.Now().UTC()
		mock.ExpectQuery(q("FROM users WHERE email=? AND active=1")).
			WithArgs("a@x.com").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "a@x.com", "Ana", "USER", "hash", true, now, now))

		u, err := repository.NewUserRepo(db).GetActiveByEmail(ctx, "  A@X.com ")
		require.NoError(t, err)
		assert.Equal(t, "u1", u.ID)
		assert.Equal(t, "Ana", u.Name)
		assert.True(t, u.Active)
	})

	t.Run("maps no rows to ErrNotFound", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(q("FROM users WHERE id=? AND active=1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := repository.NewUserRepo(db).GetActiveByID(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestRefreshTokenRepoCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("fills id and audit columns", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(q("INSERT INTO refresh_token")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		tok := &model.RefreshToken{Token: "digest", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
		require.NoError(t, repository.NewRefreshTokenRepo(db).Create(ctx, tok))
		assert.Len(t, tok.ID, 26)
		assert.True(t, tok.Active)
		assert.False(t, tok.CreatedAt.IsZero())
	})

	t.Run("maps duplicate keys to ErrConflict", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(q("INSERT INTO refresh_token")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		err := repository.NewRefreshTokenRepo(db).Create(ctx, &model.RefreshToken{Token: "digest"})
		assert.ErrorIs(t, err, repository.ErrConflict)
	})
}

func TestRefreshTokenRepoRotate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	revoke := q("UPDATE refresh_token SET revoked=1, updated_at=? WHERE token=? AND revoked=0 AND expires_at>?")

	t.Run("revokes the presented row and inserts its successor", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(revoke).
			WithArgs(sqlmock.AnyArg(), "old", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(q("SELECT user_id, session_id FROM refresh_token WHERE token=?")).
			WithArgs("old").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "session_id"}).AddRow("u1", "s-old"))
		mock.ExpectExec(q("INSERT INTO refresh_token")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		next := &model.RefreshToken{Token: "new", SessionID: "s-new", ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, repository.NewRefreshTokenRepo(db).Rotate(ctx, "old", now, next, false))
		assert.Equal(t, "u1", next.UserID)
		assert.Equal(t, "s-new", next.SessionID)
	})

	t.Run("carries the session forward when asked", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(revoke).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(q("SELECT user_id, session_id")).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "session_id"}).AddRow("u1", "s-old"))
		mock.ExpectExec(q("INSERT INTO refresh_token")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		next := &model.RefreshToken{Token: "new", SessionID: "s-new"}
		require.NoError(t, repository.NewRefreshTokenRepo(db).Rotate(ctx, "old", now, next, true))
		assert.Equal(t, "s-old", next.SessionID)
	})

	t.Run("fails without inserting when no row is flipped", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(revoke).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repository.NewRefreshTokenRepo(db).Rotate(ctx, "old", now, &model.RefreshToken{}, false)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("rolls back when the successor cannot be stored", func(t *testing.T) {
		db, mock := newMock(t)
		boom := errors.New("disk full")
		mock.ExpectBegin()
		mock.ExpectExec(revoke).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(q("SELECT user_id, session_id")).
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "session_id"}).AddRow("u1", "s"))
		mock.ExpectExec(q("INSERT INTO refresh_token")).WillReturnError(boom)
		mock.ExpectRollback()

		err := repository.NewRefreshTokenRepo(db).Rotate(ctx, "old", now, &model.RefreshToken{}, false)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRefreshTokenRepoRevokeAll(t *testing.T) {
	db, mock := newMock(t)
	stmt := q("UPDATE refresh_token SET revoked=1, updated_at=?, updated_by=? WHERE user_id=? AND revoked=0")
	mock.ExpectExec(stmt).WithArgs(sqlmock.AnyArg(), "u1", "u1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(stmt).WithArgs(sqlmock.AnyArg(), "u1", "u1").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := repository.NewRefreshTokenRepo(db)
	n, err := repo.RevokeAllForUser(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.RevokeAllForUser(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestResetTokenRepoRedeem(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	consume := q("UPDATE password_reset_token SET used=1, updated_at=?, updated_by=user_id WHERE token=? AND used=0 AND expires_at>?")

	t.Run("consumes the token and replaces the password", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(consume).WithArgs(sqlmock.AnyArg(), "digest", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(q("SELECT user_id FROM password_reset_token WHERE token=?")).
			WithArgs("digest").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
		mock.ExpectExec(q("UPDATE users SET password_hash=?, updated_at=? WHERE id=? AND active=1")).
			WithArgs("new-hash", sqlmock.AnyArg(), "u1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		userID, err := repository.NewResetTokenRepo(db).Redeem(ctx, "digest", now, "new-hash")
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)
	})

	t.Run("rejects a token that is used or expired", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(consume).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repository.NewResetTokenRepo(db).Redeem(ctx, "digest", now, "new-hash")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("keeps the token when the user is gone", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(consume).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(q("SELECT user_id FROM password_reset_token")).
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
		mock.ExpectExec(q("UPDATE users SET password_hash=?")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := repository.NewResetTokenRepo(db).Redeem(ctx, "digest", now, "new-hash")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestResetTokenRepoInvalidateUnused(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(q("UPDATE password_reset_token SET used=1, updated_at=? WHERE user_id=? AND used=0")).
		WithArgs(sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repository.NewResetTokenRepo(db).InvalidateUnused(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestLoginAttemptRepo(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("counts failures since the window start", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(q("SELECT COUNT(*) FROM login_attempt WHERE email=? AND successful=0 AND created_at>=?")).
			WithArgs("a@x.com", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

		n, err := repository.NewLoginAttemptRepo(db).CountFailedSince(ctx, "a@x.com", now.Add(-15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	})

	t.Run("reads the latest failure", func(t *testing.T) {
		db, mock := newMock(t)
		cols := []string{"id", "email", "ip_address", "user_agent", "successful", "created_at", "updated_at", "active", "created_by", "updated_by"}
		mock.ExpectQuery(q("ORDER BY created_at DESC LIMIT 1")).
			WithArgs("a@x.com").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("id", "a@x.com", "10.0.0.1", "curl", false, now, now, true, "", ""))

		a, err := repository.NewLoginAttemptRepo(db).LatestFailed(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, now, a.CreatedAt)
		assert.Equal(t, "10.0.0.1", a.IPAddress)
	})

	t.Run("clears failed rows for one email", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(q("DELETE FROM login_attempt WHERE email=? AND successful=0")).
			WithArgs("a@x.com").
			WillReturnResult(sqlmock.NewResult(0, 4))

		n, err := repository.NewLoginAttemptRepo(db).DeleteFailed(ctx, "a@x.com")
		require.NoError(t, err)
		assert.EqualValues(t, 4, n)
	})

	t.Run("keeps the caller's attempt time", func(t *testing.T) {
		db, mock := newMock(t)
		at := now.Add(-time.Minute)
		mock.ExpectExec(q("INSERT INTO login_attempt")).
			WithArgs(sqlmock.AnyArg(), "a@x.com", "ip", "ua", false, at, at, true, "", "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		a := &model.LoginAttempt{Email: "a@x.com", IPAddress: "ip", UserAgent: "ua"}
		a.CreatedAt = at
		require.NoError(t, repository.NewLoginAttemptRepo(db).Insert(ctx, a))
	})
}
