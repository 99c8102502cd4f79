package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cgEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainguard_entries_total",
		Help: "Total chain entries appended.",
	})

	cgVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainguard_verifications_total",
		Help: "Total full chain verifications by result.",
	}, []string{"result"})

	cgViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainguard_violations_total",
		Help: "Total violations observed across verifications.",
	})

	cgDriftChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainguard_drift_checks_total",
		Help: "Total drift tripwire checks by result.",
	}, []string{"result"})

	cgChainLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainguard_chain_length",
		Help: "Entries in the ledger as of the last observation.",
	})

	cgWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainguard_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	cgRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainguard_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	cgRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chainguard_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		cgRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		cgRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordEntryAppend records one successful chain append.
func RecordEntryAppend() {
	cgEntriesTotal.Inc()
}

// RecordVerification records a full chain verification outcome.
func RecordVerification(valid bool, violations int) {
	if valid {
		cgVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		cgVerificationsTotal.WithLabelValues("invalid").Inc()
	}
	cgViolationsTotal.Add(float64(violations))
}

// RecordDriftCheck records a drift tripwire outcome.
func RecordDriftCheck(clean bool) {
	if clean {
		cgDriftChecksTotal.WithLabelValues("clean").Inc()
	} else {
		cgDriftChecksTotal.WithLabelValues("drifted").Inc()
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		cgWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		cgWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// SetChainLength updates the chain length gauge.
func SetChainLength(n int) {
	cgChainLength.Set(float64(n))
}
