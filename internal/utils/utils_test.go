package utils_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-core/internal/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := utils.HashPassword("S3cret!pass", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "S3cret!pass", hash)

	assert.True(t, utils.VerifyPassword(hash, "S3cret!pass"))
	assert.False(t, utils.VerifyPassword(hash, "wrong"))
	assert.False(t, utils.VerifyPassword("not-a-hash", "S3cret!pass"))
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name    string
		plain   string
		wantErr bool
	}{
		{name: "strong password", plain: "Str0ng!Pass", wantErr: false},
		{name: "too short", plain: "S0!a", wantErr: true},
		{name: "no upper-case", plain: "weak0!pass", wantErr: true},
		{name: "no lower-case", plain: "WEAK0!PASS", wantErr: true},
		{name: "no digit", plain: "Weak!Pass", wantErr: true},
		{name: "no special character", plain: "Weak0Pass", wantErr: true},
		{name: "empty", plain: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := utils.ValidatePasswordStrength(tt.plain)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, utils.ErrWeakPassword))
		})
	}

	t.Run("message lists every missing rule", func(t *testing.T) {
		err := utils.ValidatePasswordStrength("abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
		assert.Contains(t, err.Error(), "an upper-case letter")
		assert.Contains(t, err.Error(), "a digit")
		assert.Contains(t, err.Error(), "a special character")
		assert.NotContains(t, err.Error(), "a lower-case letter")
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Now()
	sub := utils.Subject{UserID: "user-1", Email: "a@x.com", Name: "Ana", UserType: "USER"}

	tok, err := utils.NewAccessToken(testSecret, sub, 2*time.Hour, now)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
	assert.WithinDuration(t, now.Add(2*time.Hour), tok.Exp, time.Second)

	claims, err := utils.ParseAccessToken(testSecret, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "Ana", claims.Name)
	assert.Equal(t, "USER", claims.UserType)
	assert.NotEmpty(t, claims.ID)
}

func TestAccessTokensAreUnique(t *testing.T) {
	now := time.Now()
	sub := utils.Subject{UserID: "user-1"}
	a, err := utils.NewAccessToken(testSecret, sub, time.Hour, now)
	require.NoError(t, err)
	b, err := utils.NewAccessToken(testSecret, sub, time.Hour, now)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestParseAccessTokenRejects(t *testing.T) {
	sub := utils.Subject{UserID: "user-1"}

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := utils.NewAccessToken(testSecret, sub, time.Hour, time.Now())
		require.NoError(t, err)
		_, err = utils.ParseAccessToken("another-secret-another-secret-000", tok.Token)
		assert.ErrorIs(t, err, utils.ErrInvalidAccessToken)
	})

	t.Run("expired token", func(t *testing.T) {
		tok, err := utils.NewAccessToken(testSecret, sub, time.Minute, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		_, err = utils.ParseAccessToken(testSecret, tok.Token)
		assert.ErrorIs(t, err, utils.ErrInvalidAccessToken)
	})

	t.Run("unsigned token", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = utils.ParseAccessToken(testSecret, raw)
		assert.ErrorIs(t, err, utils.ErrInvalidAccessToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := utils.ParseAccessToken(testSecret, "not.a.jwt")
		assert.ErrorIs(t, err, utils.ErrInvalidAccessToken)
	})
}

func TestOpaqueTokens(t *testing.T) {
	a, err := utils.NewOpaqueToken(utils.RefreshTokenBytes)
	require.NoError(t, err)
	b, err := utils.NewOpaqueToken(utils.RefreshTokenBytes)
	require.NoError(t, err)

	assert.Len(t, a, 96)
	assert.NotEqual(t, a, b)

	assert.Len(t, utils.HashToken(a), 64)
	assert.Equal(t, utils.HashToken(a), utils.HashToken(a))
	assert.NotEqual(t, utils.HashToken(a), utils.HashToken(b))
}

func TestDescribeDevice(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{
			name: "chrome on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: "Chrome on Windows",
		},
		{
			name: "firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: "Firefox on Linux",
		},
		{
			name: "safari on iphone",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			want: "Safari on iPhone",
		},
		{
			name: "unrecognised client",
			ua:   "curl/8.4.0",
			want: "unknown browser on unknown OS",
		},
		{
			name: "missing header",
			ua:   "",
			want: utils.UnknownDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utils.DescribeDevice(tt.ua))
		})
	}
}
