// Package observability exposes Prometheus metrics for the auth flows.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Label values shared by the services and the tests.
const (
	ResultSuccess     = "success"
	ResultInvalid     = "invalid"
	ResultLocked      = "locked"
	ResultError       = "error"
	ResultDenied      = "denied"
	ResultAllowed     = "allowed"
	ResultUnavailable = "unavailable"

	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all"
	ReasonRotation      = "rotation"
	ReasonSession       = "session"
	ReasonPasswordReset = "password_reset"

	StageRequested = "requested"
	StageConfirmed = "confirmed"
	StageRejected  = "rejected"
)

// Metrics contains the counters recorded by the auth services.  A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	TokensRevoked   *prometheus.CounterVec
	BlacklistChecks *prometheus.CounterVec
	PasswordResets  *prometheus.CounterVec
}

// NewMetrics creates and registers the auth metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_login_attempts_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_refresh_total",
				Help: "Total number of refresh token rotations by result",
			},
			[]string{"result"},
		),
		TokensRevoked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_tokens_revoked_total",
				Help: "Total number of refresh tokens revoked by reason",
			},
			[]string{"reason"},
		),
		BlacklistChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_blacklist_checks_total",
				Help: "Total number of access token denylist lookups by result",
			},
			[]string{"result"},
		),
		PasswordResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_password_resets_total",
				Help: "Total number of password reset operations by stage",
			},
			[]string{"stage"},
		),
	}

	reg.MustRegister(m.LoginAttempts)
	reg.MustRegister(m.Refreshes)
	reg.MustRegister(m.TokensRevoked)
	reg.MustRegister(m.BlacklistChecks)
	reg.MustRegister(m.PasswordResets)

	return m
}

// NewRegistry returns a registry carrying the Go runtime and process
// collectors together with the auth metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry, NewMetrics(registry)
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

// Revoked adds n revoked refresh tokens under reason.
func (m *Metrics) Revoked(reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensRevoked.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) BlacklistCheck(result string) {
	if m == nil {
		return
	}
	m.BlacklistChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) PasswordReset(stage string) {
	if m == nil {
		return
	}
	m.PasswordResets.WithLabelValues(stage).Inc()
}
