package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/observability"
	"github.com/iliyamo/auth-core/internal/queue"
	"github.com/iliyamo/auth-core/internal/repository"
)

// Audit actions published by AuthService.
const (
	ActionLoginSuccess   = "login_success"
	ActionLoginFailed    = "login_failed"
	ActionLoginLocked    = "login_locked"
	ActionRefresh        = "token_refresh"
	ActionLogout         = "logout"
	ActionLogoutAll      = "logout_all"
	ActionSessionRevoke  = "session_revoke"
	ActionResetRequested = "password_reset_requested"
	ActionResetConfirmed = "password_reset_confirmed"
)

// Deps are the collaborators of AuthService.  Events and Metrics may be nil.
type Deps struct {
	Users     UserStore
	Guard     *LoginAttemptGuard
	Creds     *CredentialVerifier
	Issuer    *TokenIssuer
	Refresh   *RefreshTokenStore
	Blacklist *TokenBlacklist
	Reset     *PasswordResetFlow
	Events    EventPublisher
	Log       *slog.Logger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

// AuthService runs the login, refresh, logout and password reset flows over
// the six components.
type AuthService struct {
	users     UserStore
	guard     *LoginAttemptGuard
	creds     *CredentialVerifier
	issuer    *TokenIssuer
	refresh   *RefreshTokenStore
	blacklist *TokenBlacklist
	reset     *PasswordResetFlow
	events    EventPublisher
	log       *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(d Deps) *AuthService {
	return &AuthService{
		users:     d.Users,
		guard:     d.Guard,
		creds:     d.Creds,
		issuer:    d.Issuer,
		refresh:   d.Refresh,
		blacklist: d.Blacklist,
		reset:     d.Reset,
		events:    d.Events,
		log:       d.Log,
		metrics:   d.Metrics,
		now:       clock(d.Now),
	}
}

// Login checks the lockout, verifies the password and issues a token
// bundle.  Unknown emails and wrong passwords both record a failure and
// return ErrInvalidCredentials.  A locked email is rejected before the
// password is looked at and no attempt is recorded for it.
func (s *AuthService) Login(ctx context.Context, email, password string, rc RequestContext) (TokenBundle, error) {
	email = repository.NormalizeEmail(email)

	status, err := s.guard.IsLocked(ctx, email)
	if err != nil {
		s.metrics.Login(observability.ResultError)
		return TokenBundle{}, err
	}
	if status.Locked {
		s.metrics.Login(observability.ResultLocked)
		s.audit(ctx, ActionLoginLocked, rc, "", email, nil)
		return TokenBundle{}, oops.Code(CodeAccountLocked).
			With("email", email).
			Wrap(&LockedError{Remaining: status.Remaining})
	}

	user, err := s.users.GetActiveByEmail(ctx, email)
	var valid bool
	switch {
	case errors.Is(err, repository.ErrNotFound):
		valid = s.creds.VerifyUnknown(password)
	case err != nil:
		s.metrics.Login(observability.ResultError)
		return TokenBundle{}, oops.Code(CodeLoginFailed).
			With("operation", "get user by email").
			Wrap(err)
	default:
		valid = s.creds.Verify(user.PasswordHash, password)
	}

	if !valid {
		if err := s.guard.RecordAttempt(ctx, email, false, rc); err != nil {
			s.metrics.Login(observability.ResultError)
			return TokenBundle{}, err
		}
		s.metrics.Login(observability.ResultInvalid)
		s.audit(ctx, ActionLoginFailed, rc, user.ID, email, nil)
		return TokenBundle{}, oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
	}

	rc.UserID = user.ID
	if err := s.guard.RecordAttempt(ctx, email, true, rc); err != nil {
		s.metrics.Login(observability.ResultError)
		return TokenBundle{}, err
	}
	bundle, err := s.issuer.Issue(ctx, user, rc)
	if err != nil {
		s.metrics.Login(observability.ResultError)
		return TokenBundle{}, err
	}
	s.metrics.Login(observability.ResultSuccess)
	s.audit(ctx, ActionLoginSuccess, rc, user.ID, email, nil)
	return bundle, nil
}

// Refresh rotates refreshToken and returns a new bundle.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, rc RequestContext) (TokenBundle, error) {
	bundle, err := s.issuer.Rotate(ctx, refreshToken, rc, s.lookupOwner)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			s.metrics.Refresh(observability.ResultInvalid)
		} else {
			s.metrics.Refresh(observability.ResultError)
		}
		return TokenBundle{}, err
	}
	s.metrics.Refresh(observability.ResultSuccess)
	s.metrics.Revoked(observability.ReasonRotation, 1)
	rc.UserID = bundle.UserID
	s.audit(ctx, ActionRefresh, rc, bundle.UserID, "", nil)
	return bundle, nil
}

// lookupOwner resolves the owner of a rotated token.  An owner that is gone
// or deactivated turns the refresh into ErrInvalidToken.
func (s *AuthService) lookupOwner(ctx context.Context, userID string) (model.User, error) {
	user, err := s.users.GetActiveByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, oops.Code(CodeInvalidToken).
			With("user_id", userID).
			Wrap(ErrInvalidToken)
	}
	if err != nil {
		return model.User{}, oops.Code(CodeRefreshFailed).
			With("operation", "get user by id").
			Wrap(err)
	}
	return user, nil
}

// Logout denies accessToken and revokes every refresh token of rc.UserID.
// It returns the number of sessions revoked.  When the denylist cannot be
// written nothing is revoked and the error is returned.
func (s *AuthService) Logout(ctx context.Context, accessToken string, rc RequestContext) (int64, error) {
	return s.logout(ctx, accessToken, rc, ActionLogout, observability.ReasonLogout)
}

// LogoutAll is Logout for clients that display the revoked session count.
func (s *AuthService) LogoutAll(ctx context.Context, accessToken string, rc RequestContext) (int64, error) {
	return s.logout(ctx, accessToken, rc, ActionLogoutAll, observability.ReasonLogoutAll)
}

func (s *AuthService) logout(ctx context.Context, accessToken string, rc RequestContext, action, reason string) (int64, error) {
	if err := s.blacklist.Add(ctx, accessToken); err != nil {
		return 0, err
	}
	n, err := s.refresh.RevokeAll(ctx, rc.UserID)
	if err != nil {
		return 0, err
	}
	s.metrics.Revoked(reason, n)
	s.audit(ctx, action, rc, rc.UserID, "", map[string]any{"revoked": n})
	return n, nil
}

// RevokeSession revokes a single refresh token, for signing out one device.
func (s *AuthService) RevokeSession(ctx context.Context, refreshToken string, rc RequestContext) error {
	if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	s.metrics.Revoked(observability.ReasonSession, 1)
	s.audit(ctx, ActionSessionRevoke, rc, rc.UserID, "", nil)
	return nil
}

// RequestPasswordReset starts a reset for email.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, rc RequestContext) (ResetRequestResult, error) {
	email = repository.NormalizeEmail(email)
	res, err := s.reset.Request(ctx, email, rc)
	if err != nil {
		return ResetRequestResult{}, err
	}
	s.metrics.PasswordReset(observability.StageRequested)
	s.audit(ctx, ActionResetRequested, rc, "", email, nil)
	return res, nil
}

// ConfirmPasswordReset redeems token and sets newPassword.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string, rc RequestContext) error {
	userID, err := s.reset.Confirm(ctx, token, newPassword, rc)
	if err != nil {
		if userID == "" {
			s.metrics.PasswordReset(observability.StageRejected)
		}
		return err
	}
	s.metrics.PasswordReset(observability.StageConfirmed)
	rc.UserID = userID
	s.audit(ctx, ActionResetConfirmed, rc, userID, "", nil)
	return nil
}

// IsAccessTokenDenied reports whether token is on the denylist.
func (s *AuthService) IsAccessTokenDenied(ctx context.Context, token string) bool {
	return s.blacklist.IsBlacklisted(ctx, token)
}

func (s *AuthService) audit(ctx context.Context, action string, rc RequestContext, userID, email string, details map[string]any) {
	if s.events == nil {
		return
	}
	err := s.events.PublishAudit(ctx, queue.AuditEvent{
		Action:    action,
		UserID:    userID,
		Email:     email,
		IPAddress: rc.IP,
		UserAgent: rc.UserAgent,
		At:        s.now().UTC(),
		Details:   details,
	})
	if err != nil {
		s.log.Warn("audit publish failed", "action", action, "error", err)
	}
}
