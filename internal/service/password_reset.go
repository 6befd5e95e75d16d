package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/queue"
	"github.com/iliyamo/auth-core/internal/repository"
	"github.com/iliyamo/auth-core/internal/utils"
)

// ResetTokenTTL is how long a reset token stays redeemable.
const ResetTokenTTL = time.Hour

// ResetRequestMessage is returned for every reset request, whether or not
// the email belongs to an account.
const ResetRequestMessage = "If the email exists, a password reset link has been sent"

// ResetRequestResult is the answer to a reset request.  Token is only
// filled outside production.
type ResetRequestResult struct {
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// ResetOptions configures a PasswordResetFlow.
type ResetOptions struct {
	// ExposeToken returns the raw token in the result.  Never set it in
	// production.
	ExposeToken bool
	// FrontendURL is the base of the link sent by mail.
	FrontendURL string
	Now         func() time.Time
}

// PasswordResetFlow issues and redeems single-use reset tokens.
type PasswordResetFlow struct {
	users   UserStore
	tokens  ResetTokenRepository
	refresh *RefreshTokenStore
	creds   *CredentialVerifier
	events  EventPublisher
	log     *slog.Logger
	opts    ResetOptions
	now     func() time.Time
}

// NewPasswordResetFlow wires the flow.  events may be nil.
func NewPasswordResetFlow(users UserStore, tokens ResetTokenRepository, refresh *RefreshTokenStore,
	creds *CredentialVerifier, events EventPublisher, log *slog.Logger, opts ResetOptions) *PasswordResetFlow {
	return &PasswordResetFlow{
		users:   users,
		tokens:  tokens,
		refresh: refresh,
		creds:   creds,
		events:  events,
		log:     log,
		opts:    opts,
		now:     clock(opts.Now),
	}
}

// Request issues a reset token for email.  Unknown emails get the same
// result as known ones.  Earlier unused tokens of the user are marked used
// before the new one is stored.
func (f *PasswordResetFlow) Request(ctx context.Context, email string, rc RequestContext) (ResetRequestResult, error) {
	result := ResetRequestResult{Message: ResetRequestMessage}

	user, err := f.users.GetActiveByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return ResetRequestResult{}, oops.Code(CodeResetFailed).
			With("operation", "get user by email").
			Wrap(err)
	}

	now := f.now()
	if _, err := f.tokens.InvalidateUnused(ctx, user.ID, now); err != nil {
		return ResetRequestResult{}, oops.Code(CodeResetFailed).
			With("operation", "invalidate unused reset tokens").
			With("user_id", user.ID).
			Wrap(err)
	}

	raw, err := utils.NewOpaqueToken(utils.ResetTokenBytes)
	if err != nil {
		return ResetRequestResult{}, oops.Code(CodeResetFailed).
			With("operation", "generate reset token").
			Wrap(err)
	}
	row := &model.PasswordResetToken{
		Token:     utils.HashToken(raw),
		UserID:    user.ID,
		ExpiresAt: now.Add(ResetTokenTTL),
	}
	row.CreatedAt = now
	row.CreatedBy = user.ID
	if err := f.tokens.Create(ctx, row); err != nil {
		return ResetRequestResult{}, oops.Code(CodeResetFailed).
			With("operation", "store reset token").
			With("user_id", user.ID).
			Wrap(err)
	}

	f.notify(ctx, queue.PasswordResetRequested{
		Email:     user.Email,
		Name:      user.Name,
		Token:     raw,
		ResetURL:  f.resetURL(raw),
		ExpiresAt: row.ExpiresAt,
	})

	if f.opts.ExposeToken {
		result.Token = raw
	}
	return result, nil
}

// Confirm redeems token and sets newPassword.  The token is consumed in the
// same transaction that replaces the hash; afterwards every refresh token
// of the user is revoked.  A weak password is rejected before the token is
// touched.
func (f *PasswordResetFlow) Confirm(ctx context.Context, token, newPassword string, rc RequestContext) (string, error) {
	if token == "" {
		return "", oops.Code(CodeResetTokenInvalid).Wrap(ErrResetTokenInvalid)
	}
	if err := utils.ValidatePasswordStrength(newPassword); err != nil {
		return "", oops.Code(CodeWeakPassword).Wrap(err)
	}
	hash, err := f.creds.SetPassword(newPassword)
	if err != nil {
		return "", oops.Code(CodeResetFailed).
			With("operation", "hash password").
			Wrap(err)
	}

	userID, err := f.tokens.Redeem(ctx, utils.HashToken(token), f.now(), hash)
	if errors.Is(err, repository.ErrNotFound) {
		return "", oops.Code(CodeResetTokenInvalid).Wrap(ErrResetTokenInvalid)
	}
	if err != nil {
		return "", oops.Code(CodeResetFailed).
			With("operation", "redeem reset token").
			Wrap(err)
	}

	if _, err := f.refresh.RevokeAll(ctx, userID); err != nil {
		return userID, err
	}
	return userID, nil
}

func (f *PasswordResetFlow) notify(ctx context.Context, e queue.PasswordResetRequested) {
	if f.events == nil {
		return
	}
	if err := f.events.PublishPasswordReset(ctx, e); err != nil {
		f.log.Warn("password reset notification failed", "error", err)
	}
}

func (f *PasswordResetFlow) resetURL(raw string) string {
	base := strings.TrimRight(f.opts.FrontendURL, "/")
	return base + "/reset-password?token=" + url.QueryEscape(raw)
}
