// Package metrics defines the service's Prometheus instruments, served by
// promhttp on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Marks counts attendance mark attempts by method and outcome.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_attendance_marks_total",
		Help: "Attendance mark attempts by method and outcome.",
	}, []string{"method", "outcome"})

	// TokenValidations counts rotating-token checks by outcome.
	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_token_validations_total",
		Help: "Rotating proof token validations by outcome.",
	}, []string{"outcome"})

	// ManualReviews counts lecturer decisions on manual requests.
	ManualReviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_manual_reviews_total",
		Help: "Manual attendance request reviews by decision.",
	}, []string{"decision"})

	// SessionsExpired counts sessions completed by the lazy expiry check.
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_lazy_expired_total",
		Help: "Sessions transitioned to completed on touch after expiry.",
	})
)
