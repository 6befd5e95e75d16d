package service_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-core/internal/logging"
	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/observability"
	"github.com/iliyamo/auth-core/internal/service"
	"github.com/iliyamo/auth-core/internal/utils"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "Corr3ct!Horse"
	accessTTL    = 2 * time.Hour
	refreshTTL   = 7 * 24 * time.Hour
)

var t0 = time.Now().UTC().Truncate(time.Second)

type harness struct {
	clock     *fakeClock
	users     *memUsers
	refresh   *memRefreshTokens
	resets    *memResetTokens
	attempts  *memAttempts
	events    *recordingPublisher
	redis     *miniredis.Miniredis
	metrics   *observability.Metrics
	guard     *service.LoginAttemptGuard
	creds     *service.CredentialVerifier
	store     *service.RefreshTokenStore
	issuer    *service.TokenIssuer
	blacklist *service.TokenBlacklist
	reset     *service.PasswordResetFlow
	auth      *service.AuthService
	user      model.User
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	keepSession bool
	exposeToken bool
}

func keepSession() harnessOption { return func(c *harnessConfig) { c.keepSession = true } }
func exposeToken() harnessOption { return func(c *harnessConfig) { c.exposeToken = true } }

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	var cfg harnessConfig
	for _, o := range opts {
		o(&cfg)
	}

	hash, err := utils.HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)
	user := model.User{
		ID: "6f1c1c4e-5a36-4c55-9a7e-8d1f0e2b7a10", Email: "a@x.com", Name: "Ana",
		UserType: "USER", PasswordHash: hash, Active: true,
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		clock:    newClock(t0),
		users:    newMemUsers(user),
		refresh:  newMemRefreshTokens(),
		attempts: &memAttempts{},
		events:   &recordingPublisher{},
		redis:    mr,
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		user:     user,
	}
	h.resets = newMemResetTokens(h.users)

	log := logging.Discard()
	now := h.clock.Now
	h.creds = service.NewCredentialVerifier(bcrypt.MinCost)
	h.guard = service.NewLoginAttemptGuard(h.attempts, now)
	h.store = service.NewRefreshTokenStore(h.refresh, refreshTTL, cfg.keepSession, now)
	h.issuer = service.NewTokenIssuer(testSecret, accessTTL, h.store, now)
	h.blacklist = service.NewTokenBlacklist(rdb, accessTTL, log, h.metrics)
	h.reset = service.NewPasswordResetFlow(h.users, h.resets, h.store, h.creds, h.events, log, service.ResetOptions{
		ExposeToken: cfg.exposeToken,
		FrontendURL: "https://app.example.com/",
		Now:         now,
	})
	h.auth = service.NewAuthService(service.Deps{
		Users:     h.users,
		Guard:     h.guard,
		Creds:     h.creds,
		Issuer:    h.issuer,
		Refresh:   h.store,
		Blacklist: h.blacklist,
		Reset:     h.reset,
		Events:    h.events,
		Log:       log,
		Metrics:   h.metrics,
		Now:       now,
	})
	return h
}

var rc = service.RequestContext{
	IP:        "203.0.113.7",
	UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
}
