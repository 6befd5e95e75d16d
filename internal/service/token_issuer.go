package service

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/utils"
)

// TokenBundle is returned by login and refresh.
type TokenBundle struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	UserType     string `json:"userType"`
}

// TokenIssuer mints access tokens and delegates refresh tokens to the
// RefreshTokenStore.
type TokenIssuer struct {
	secret  string
	ttl     time.Duration
	refresh *RefreshTokenStore
	now     func() time.Time
}

// NewTokenIssuer returns an issuer signing with secret for ttl.
func NewTokenIssuer(secret string, ttl time.Duration, refresh *RefreshTokenStore, now func() time.Time) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, refresh: refresh, now: clock(now)}
}

// AccessToken signs an access token for user.
func (i *TokenIssuer) AccessToken(user model.User) (utils.AccessToken, error) {
	tok, err := utils.NewAccessToken(i.secret, utils.Subject{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		UserType: user.UserType,
	}, i.ttl, i.now())
	if err != nil {
		return utils.AccessToken{}, oops.Code(CodeLoginFailed).
			With("operation", "sign access token").
			Wrap(err)
	}
	return tok, nil
}

// Issue mints an access token and stores a new refresh token for user.
// A refresh token that cannot be stored fails the whole issuance.
func (i *TokenIssuer) Issue(ctx context.Context, user model.User, rc RequestContext) (TokenBundle, error) {
	access, err := i.AccessToken(user)
	if err != nil {
		return TokenBundle{}, err
	}
	refresh, err := i.refresh.Issue(ctx, user.ID, rc)
	if err != nil {
		return TokenBundle{}, err
	}
	return i.bundle(user, access, refresh.Token), nil
}

// Rotate exchanges a refresh token and mints an access token for its owner.
// lookup resolves the owner recorded on the rotated row.
func (i *TokenIssuer) Rotate(ctx context.Context, token string, rc RequestContext, lookup func(ctx context.Context, userID string) (model.User, error)) (TokenBundle, error) {
	refresh, err := i.refresh.Rotate(ctx, token, rc)
	if err != nil {
		return TokenBundle{}, err
	}
	user, err := lookup(ctx, refresh.UserID)
	if err != nil {
		return TokenBundle{}, err
	}
	access, err := i.AccessToken(user)
	if err != nil {
		return TokenBundle{}, err
	}
	return i.bundle(user, access, refresh.Token), nil
}

// TTL is the configured access token lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

func (i *TokenIssuer) bundle(user model.User, access utils.AccessToken, refresh string) TokenBundle {
	return TokenBundle{
		AccessToken:  access.Token,
		RefreshToken: refresh,
		ExpiresIn:    int64(i.ttl / time.Second),
		UserID:       user.ID,
		Name:         user.Name,
		UserType:     user.UserType,
	}
}
