package model

import "time"

// User is the slice of the `users` table the auth core reads and writes.
// The table itself belongs to the user service; this package only needs the
// identity, the display fields embedded in access tokens and the password
// hash.  The hash is only ever replaced wholesale through the password
// reset flow.
//
// Fields:
//  ID           – users.id (uuid string).
//  Email        – unique, lower-cased login identifier.
//  Name         – display name, copied into the access token.
//  UserType     – role claim (e.g. USER, ADMIN).
//  PasswordHash – bcrypt hash of the password.
//  Active       – soft-delete flag; inactive users cannot log in.
type User struct {
    ID           string    // users.id
    Email        string    // users.email
    Name         string    // users.name
    UserType     string    // users.user_type
    PasswordHash string    // users.password_hash
    Active       bool      // users.active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// AuditColumns are shared by every table owned by the auth core.  ID is a
// ULID string so rows sort by creation time.  CreatedBy and UpdatedBy hold
// the acting user id when one is known and are empty otherwise.
type AuditColumns struct {
    ID        string
    CreatedAt time.Time
    UpdatedAt time.Time
    Active    bool
    CreatedBy string
    UpdatedBy string
}
