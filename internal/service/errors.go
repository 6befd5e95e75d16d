package service

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Domain errors surfaced to the HTTP boundary.  Store and cache failures
// are wrapped, never replaced, so errors.Is still finds the driver error.
var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidToken covers absent, expired and revoked refresh tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrResetTokenInvalid covers absent, expired and used reset tokens.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrStorageUnavailable is returned when a write the flow depends on
	// cannot reach its backend.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Error codes attached with oops.Code.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeResetTokenInvalid  = "AUTH_RESET_TOKEN_INVALID"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeStorageUnavailable = "AUTH_STORAGE_UNAVAILABLE"
	CodeLoginFailed        = "AUTH_LOGIN_FAILED"
	CodeRefreshFailed      = "AUTH_REFRESH_FAILED"
	CodeLogoutFailed       = "AUTH_LOGOUT_FAILED"
	CodeResetFailed        = "AUTH_RESET_FAILED"
	CodeCleanupFailed      = "AUTH_CLEANUP_FAILED"
)

// LockedError reports an active lockout.  Only a coarse remaining time is
// exposed, never the failure count.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account is temporarily locked, try again in %d minutes", e.Minutes())
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// Minutes rounds the remaining lockout up to whole minutes.
func (e *LockedError) Minutes() int {
	return int(math.Ceil(e.Remaining.Minutes()))
}
