package model

import "time"

// RefreshToken models a row of the `refresh_token` table.  Each row is one
// link in a device session: logging in creates one, every rotation revokes
// the presented row and creates its successor.  Rows are never deleted by
// the request path; the retention job removes them long after expiry.
//
// Token holds the SHA-256 hex digest of the value handed to the client, the
// raw value is never persisted.  DeviceInfo, UserAgent and IPAddress are
// diagnostic only and play no part in authorization.
type RefreshToken struct {
    AuditColumns
    Token      string    // refresh_token.token (sha256 hex)
    UserID     string    // refresh_token.user_id
    ExpiresAt  time.Time // refresh_token.expires_at
    Revoked    bool      // refresh_token.revoked
    SessionID  string    // refresh_token.session_id
    DeviceInfo string    // refresh_token.device_info
    UserAgent  string    // refresh_token.user_agent
    IPAddress  string    // refresh_token.ip_address
}

// UsableAt reports whether the row may still be exchanged at t.
func (t *RefreshToken) UsableAt(at time.Time) bool {
    return !t.Revoked && at.Before(t.ExpiresAt)
}
