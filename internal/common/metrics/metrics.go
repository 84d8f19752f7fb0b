// Package metrics registers the Prometheus instruments for the wizard flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StepsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_steps_completed_total",
			Help: "Total number of wizard steps completed successfully",
		},
		[]string{"step"},
	)

	StepsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_steps_failed_total",
			Help: "Total number of wizard steps that ended in failure",
		},
		[]string{"step", "error_type"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "wizard_step_duration_seconds",
			Help: "Duration of wizard step processing in seconds",
		},
		[]string{"step"},
	)

	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_remote_calls_total",
			Help: "Total number of SOAP operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	DecodeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_decode_fallback_total",
			Help: "Times a remote result string failed structured decoding and was kept as a plain message",
		},
		[]string{"operation"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of step-outcome webhook deliveries by status",
		},
		[]string{"status"},
	)
)
