// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActivationAttempts counts activation requests by outcome reason.
	ActivationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "license_server",
		Name:      "activation_attempts_total",
		Help:      "Activation attempts by outcome reason.",
	}, []string{"reason"})

	// TokenVerifications counts offline token checks by result.
	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "license_server",
		Name:      "token_verifications_total",
		Help:      "Activation token verifications by result.",
	}, []string{"valid"})

	// LicensesCreated counts admin license creations by duration plan.
	LicensesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "license_server",
		Name:      "licenses_created_total",
		Help:      "Licenses created by duration plan.",
	}, []string{"plan"})

	// LicensesRevoked counts admin revocations.
	LicensesRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "license_server",
		Name:      "licenses_revoked_total",
		Help:      "Licenses revoked by admin action.",
	})

	// ExpiredActiveLicenses is maintained by the periodic expiry audit: the
	// number of licenses past their expiry that still carry active=true.
	ExpiredActiveLicenses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "license_server",
		Name:      "expired_active_licenses",
		Help:      "Licenses past expires_at that are still flagged active.",
	})
)
