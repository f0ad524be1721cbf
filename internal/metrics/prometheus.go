// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var WebhookRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sesguard_webhook_requests_total",
		Help: "Total number of SNS webhook requests by category and status",
	},
	[]string{"category", "status"},
)

var WebhookDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sesguard_webhook_duration_seconds",
		Help:    "Duration of SNS webhook handling in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"category"},
)

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sesguard_notifications_total",
		Help: "Classified notification recipients by type and outcome",
	},
	[]string{"type", "outcome"},
)

var LedgerUpsertsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sesguard_ledger_upserts_total",
		Help: "Blacklist ledger updates by reason",
	},
	[]string{"reason"},
)

var SendDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sesguard_send_decisions_total",
		Help: "Send eligibility decisions by result and reason",
	},
	[]string{"result", "reason"},
)

var ValidationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sesguard_validations_total",
		Help: "Email validations by source and status",
	},
	[]string{"source", "status"},
)

var ListenerFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sesguard_listener_failures_total",
		Help: "Event listener failures by listener",
	},
	[]string{"listener"},
)

var registerOnce sync.Once

// Register adds every collector to reg once. Later calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			WebhookRequestsTotal,
			WebhookDuration,
			NotificationsTotal,
			LedgerUpsertsTotal,
			SendDecisionsTotal,
			ValidationsTotal,
			ListenerFailuresTotal,
		)
	})
}

// Recorder adapts the collectors to the observer interfaces of the services.
type Recorder struct{}

func (Recorder) ObserveNotification(notificationType, outcome string) {
	NotificationsTotal.WithLabelValues(notificationType, outcome).Inc()
}

func (Recorder) ObserveLedgerUpsert(reason string) {
	LedgerUpsertsTotal.WithLabelValues(reason).Inc()
}

func (Recorder) ObserveDecision(allowed bool, reason string) {
	result := "allow"
	if !allowed {
		result = "block"
	}
	SendDecisionsTotal.WithLabelValues(result, reason).Inc()
}

func (Recorder) ObserveValidation(source, status string) {
	ValidationsTotal.WithLabelValues(source, status).Inc()
}

func (Recorder) ObserveListenerFailure(listener string, _ error) {
	ListenerFailuresTotal.WithLabelValues(listener).Inc()
}
