package model

// LoginAttempt is an append-only row of the `login_attempt` table.  Rows
// are never updated.  A successful login deletes the failed rows for the
// same email, which is how the lockout counter is reset.
type LoginAttempt struct {
    AuditColumns
    Email      string // login_attempt.email
    IPAddress  string // login_attempt.ip_address
    UserAgent  string // login_attempt.user_agent
    Successful bool   // login_attempt.successful
}
