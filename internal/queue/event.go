// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the mail worker that consume them.
package queue

import "time"

// Queue names.  Both queues are durable.
const (
    PasswordResetQueue = "auth.password_reset"
    AuditQueue         = "auth.audit"
)

// PasswordResetRequested is published when a reset token is issued for an
// existing account.  It carries the raw token because the mail worker
// builds the link from it; the broker is an internal hop and the token is
// never logged.
type PasswordResetRequested struct {
    Email     string    `json:"email"`
    Name      string    `json:"name"`
    Token     string    `json:"token"`
    ResetURL  string    `json:"reset_url"`
    ExpiresAt time.Time `json:"expires_at"`
}

// AuditEvent is one security-relevant action.  Consumers persist or forward
// it; the auth core only publishes.
type AuditEvent struct {
    Action    string         `json:"action"`
    UserID    string         `json:"user_id,omitempty"`
    Email     string         `json:"email,omitempty"`
    IPAddress string         `json:"ip_address,omitempty"`
    UserAgent string         `json:"user_agent,omitempty"`
    At        time.Time      `json:"at"`
    Details   map[string]any `json:"details,omitempty"`
}
