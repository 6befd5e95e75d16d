package model

import "time"

// PasswordResetToken models a row of the `password_reset_token` table.  At
// most one unused row per user is live at a time: a new request marks the
// previous unused rows as used instead of deleting them.
type PasswordResetToken struct {
    AuditColumns
    Token     string    // password_reset_token.token (sha256 hex)
    UserID    string    // password_reset_token.user_id
    ExpiresAt time.Time // password_reset_token.expires_at
    Used      bool      // password_reset_token.used
}

// RedeemableAt reports whether the token can still authorize a reset at t.
func (t *PasswordResetToken) RedeemableAt(at time.Time) bool {
    return !t.Used && at.Before(t.ExpiresAt)
}
