package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/auth-core/internal/model"
)

// UserRepo reads the `users` table.  The table is owned by the user
// service; the only write the auth core performs on it is the password
// replacement inside ResetTokenRepo.Redeem.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,name,user_type,password_hash,active,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.UserType, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, translate(err)
}

// GetActiveByEmail fetches an active user by normalized email.
func (r *UserRepo) GetActiveByEmail(ctx context.Context, email string) (model.User, error) {
	email = NormalizeEmail(email)
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND active=1 LIMIT 1", email))
}

// GetActiveByID fetches an active user by id.
func (r *UserRepo) GetActiveByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND active=1 LIMIT 1", id))
}

// NormalizeEmail trims and lower-cases an address so lookups and the
// lockout counter agree on one identity per mailbox.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
