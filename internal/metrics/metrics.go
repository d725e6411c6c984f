// Package metrics содержит Prometheus-метрики сервиса kycgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PermissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycgate_permission_decisions_total",
			Help: "Total number of permission decisions by outcome",
		},
		[]string{"outcome", "kind"},
	)

	TierUpgrades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycgate_tier_upgrades_total",
			Help: "Total number of tier upgrade attempts by result",
		},
		[]string{"result"},
	)

	FailClosedFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycgate_fail_closed_fallbacks_total",
			Help: "Number of times a read path returned its safe default after a storage failure",
		},
		[]string{"component"},
	)

	WaitlistSignups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycgate_waitlist_signups_total",
			Help: "Total number of waitlist signups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kycgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kycgate_http_request_duration_seconds",
			Help:    "Duration of HTTP request handling in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
