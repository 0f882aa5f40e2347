package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsfw_http_requests_total",
		Help: "Total HTTP requests by method, route, and response status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smsfw_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	gateRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsfw_gate_rejections_total",
		Help: "Webhook requests refused by the admission gate, by stage.",
	}, []string{"stage"})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsfw_intake_outcomes_total",
		Help: "Processed reports by outcome action.",
	}, []string{"action"})

	scoreHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "smsfw_danger_score",
		Help:    "Distribution of danger scores returned for analyzed reports.",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})

	scorerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smsfw_scorer_duration_seconds",
		Help:    "External scorer latency by result.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"result"})

	autoBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsfw_auto_blocks_total",
		Help: "Entities auto-blocked by the threshold policy, by entity type.",
	}, []string{"entity_type"})

	persistenceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsfw_persistence_failures_total",
		Help: "Store writes that failed after a reply was committed to.",
	}, []string{"operation"})

	outboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smsfw_outbound_total",
		Help: "Outbound side effects (sms, social, alert) by result.",
	}, []string{"channel", "result"})
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordGateRejection counts a refused webhook.
func RecordGateRejection(stage string) {
	gateRejectionsTotal.WithLabelValues(stage).Inc()
}

// RecordOutcome counts a processed report.
func RecordOutcome(action string) {
	outcomesTotal.WithLabelValues(action).Inc()
}

// RecordScore observes an analyzed report's danger score.
func RecordScore(score int) {
	scoreHistogram.Observe(float64(score))
}

// RecordScorerCall observes one scorer invocation.
func RecordScorerCall(success bool, seconds float64) {
	scorerDuration.WithLabelValues(result(success)).Observe(seconds)
}

// RecordAutoBlock counts an auto-blocked entity.
func RecordAutoBlock(entityType string) {
	autoBlocksTotal.WithLabelValues(entityType).Inc()
}

// RecordPersistenceFailure counts a degraded store write.
func RecordPersistenceFailure(operation string) {
	persistenceFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordOutbound counts an outbound message or post.
func RecordOutbound(channel string, success bool) {
	outboundTotal.WithLabelValues(channel, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
