// Package telemetry provides observability for the supplier portal: structured logging
// setup and Prometheus metrics.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served by
// the side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<IAOS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Supplier authentication funnel (access code, OTP, session)
//   - Questionnaire saves and submissions
//   - CUI access events
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/supplier/responses/:questionId),
// not the raw URL, to keep cardinality bounded.
//
// Example PromQL queries:
//   - Request rate:   rate(http_requests_total[5m])
//   - Error rate (%): sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency:    histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Supplier authentication funnel.
//
// SupplierAuthAttemptsTotal has labels {step, outcome}. step is one of
// "access_code", "verification"; outcome is "success" or the failure code
// (not_found, expired, already_used, invalid_code, too_many_attempts).
//
// Example PromQL queries:
//   - Failure ratio per step: sum by (step) (rate(supplier_auth_attempts_total{outcome!="success"}[1h])) / sum by (step) (rate(supplier_auth_attempts_total[1h]))
//   - Brute force alert:      increase(supplier_auth_attempts_total{outcome="too_many_attempts"}[15m]) > 10
//
// VerificationCodesSentTotal has label {outcome}: "sent" or "failed". A rise in
// "failed" usually means the SMTP relay is rejecting mail.
//
// SessionResolutionsTotal has labels {source, outcome}. source is "cookie" or
// "bearer"; outcome is "ok", "missing", "invalid", "expired", "idle_timeout", "terminated".
var (
	SupplierAuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplier_auth_attempts_total",
			Help: "Supplier access code and verification attempts, by step and outcome.",
		},
		[]string{"step", "outcome"},
	)

	VerificationCodesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_codes_sent_total",
			Help: "Email verification codes issued, by delivery outcome.",
		},
		[]string{"outcome"},
	)

	SessionResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_resolutions_total",
			Help: "Supplier session resolutions, by token source and outcome.",
		},
		[]string{"source", "outcome"},
	)
)

// Questionnaire metrics.
//
// ResponseSavesTotal has label {outcome}: "saved", "ignored" (assignment already
// submitted) or "rejected" (malformed value).
//
// QuestionnaireSubmissionsTotal has label {outcome}: "submitted", "incomplete",
// "conflict".
//
// Example PromQL queries:
//   - Submissions per day:   increase(questionnaire_submissions_total{outcome="submitted"}[1d])
//   - Incomplete attempts:   rate(questionnaire_submissions_total{outcome="incomplete"}[1h])
var (
	ResponseSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_saves_total",
			Help: "Questionnaire draft save calls, by outcome.",
		},
		[]string{"outcome"},
	)

	QuestionnaireSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questionnaire_submissions_total",
			Help: "Questionnaire submission attempts, by outcome.",
		},
		[]string{"outcome"},
	)
)

// CUIAccessEventsTotal has label {entity_type} and is incremented once per
// CUI_ACCESSED audit entry written.
//
// Example PromQL queries:
//   - CUI reads per hour by entity: sum by (entity_type) (increase(cui_access_events_total[1h]))
var CUIAccessEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cui_access_events_total",
		Help: "CUI access audit entries written, by entity type.",
	},
	[]string{"entity_type"},
)

// DBOpenConnections tracks open connections held by the sql.DB pool. It is sampled
// every 30 seconds by StartDBStatsCollector rather than per request.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <IAOS_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples connection pool statistics every 30 seconds and updates
// DBOpenConnections. The goroutine exits once the database becomes unreachable, which
// happens when main closes the pool on shutdown.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
