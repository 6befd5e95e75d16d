package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/repository"
	"github.com/iliyamo/auth-core/internal/utils"
)

// IssuedRefreshToken is a freshly stored refresh token.  Token is the raw
// value handed to the client; only its digest is persisted.
type IssuedRefreshToken struct {
	Token     string
	UserID    string
	SessionID string
	ExpiresAt time.Time
}

// RefreshTokenStore issues, rotates and revokes refresh tokens.  Each login
// starts a chain; every rotation revokes the presented link and stores its
// successor atomically.
type RefreshTokenStore struct {
	repo        RefreshTokenRepository
	ttl         time.Duration
	keepSession bool
	now         func() time.Time
}

// NewRefreshTokenStore returns a store issuing tokens valid for ttl.  With
// keepSession set, rotation carries the session id forward instead of
// minting a new one.
func NewRefreshTokenStore(repo RefreshTokenRepository, ttl time.Duration, keepSession bool, now func() time.Time) *RefreshTokenStore {
	return &RefreshTokenStore{repo: repo, ttl: ttl, keepSession: keepSession, now: clock(now)}
}

// Issue stores a new token with a new session id for userID.
func (s *RefreshTokenStore) Issue(ctx context.Context, userID string, rc RequestContext) (IssuedRefreshToken, error) {
	raw, row, err := s.newRow(rc)
	if err != nil {
		return IssuedRefreshToken{}, err
	}
	row.UserID = userID
	row.CreatedBy = userID
	if err := s.repo.Create(ctx, row); err != nil {
		return IssuedRefreshToken{}, oops.Code(CodeStorageUnavailable).
			With("operation", "store refresh token").
			With("user_id", userID).
			Wrap(err)
	}
	return issued(raw, row), nil
}

// Rotate exchanges a valid token for its successor.  Absent, expired and
// revoked tokens fail with ErrInvalidToken, as does the loser of two
// concurrent rotations of the same token.
func (s *RefreshTokenStore) Rotate(ctx context.Context, token string, rc RequestContext) (IssuedRefreshToken, error) {
	if token == "" {
		return IssuedRefreshToken{}, oops.Code(CodeInvalidToken).Wrap(ErrInvalidToken)
	}
	raw, next, err := s.newRow(rc)
	if err != nil {
		return IssuedRefreshToken{}, err
	}
	err = s.repo.Rotate(ctx, utils.HashToken(token), s.now(), next, s.keepSession)
	if errors.Is(err, repository.ErrNotFound) {
		return IssuedRefreshToken{}, oops.Code(CodeInvalidToken).Wrap(ErrInvalidToken)
	}
	if err != nil {
		return IssuedRefreshToken{}, oops.Code(CodeRefreshFailed).
			With("operation", "rotate refresh token").
			Wrap(err)
	}
	return issued(raw, next), nil
}

// Revoke revokes exactly the given token.  Unknown or already revoked
// tokens are a no-op.
func (s *RefreshTokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.Revoke(ctx, utils.HashToken(token), s.now()); err != nil {
		return oops.Code(CodeLogoutFailed).
			With("operation", "revoke refresh token").
			Wrap(err)
	}
	return nil
}

// RevokeAll revokes every active token of userID and returns how many were
// active.
func (s *RefreshTokenStore) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, oops.Code(CodeLogoutFailed).
			With("operation", "revoke all refresh tokens").
			With("user_id", userID).
			Wrap(err)
	}
	return n, nil
}

func (s *RefreshTokenStore) newRow(rc RequestContext) (string, *model.RefreshToken, error) {
	raw, err := utils.NewOpaqueToken(utils.RefreshTokenBytes)
	if err != nil {
		return "", nil, oops.Code(CodeRefreshFailed).
			With("operation", "generate refresh token").
			Wrap(err)
	}
	now := s.now()
	row := &model.RefreshToken{
		Token:      utils.HashToken(raw),
		ExpiresAt:  now.Add(s.ttl),
		SessionID:  uuid.NewString(),
		DeviceInfo: utils.DescribeDevice(rc.UserAgent),
		UserAgent:  rc.UserAgent,
		IPAddress:  rc.IP,
	}
	row.CreatedAt = now
	return raw, row, nil
}

func issued(raw string, row *model.RefreshToken) IssuedRefreshToken {
	return IssuedRefreshToken{
		Token:     raw,
		UserID:    row.UserID,
		SessionID: row.SessionID,
		ExpiresAt: row.ExpiresAt,
	}
}
