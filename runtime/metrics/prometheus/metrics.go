// Package prometheus provides Prometheus metrics for barre coaching pipelines.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "barre"

var (
	// framesCapturedTotal counts frames emitted by the sampler.
	framesCapturedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Total number of frames sampled from the video source",
		},
	)

	// batchesDispatchedTotal counts batches handed to the processor.
	batchesDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dispatched_total",
			Help:      "Total number of frame batches dispatched for feedback",
		},
	)

	// batchesInFlight is 1 while a batch is being processed.
	batchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_in_flight",
			Help:      "Number of batches currently being processed",
		},
	)

	// batchDuration is a histogram of end-to-end batch processing time.
	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch processing (feedback, scoring and aggregation) in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// generationDuration is a histogram of feedback generation time.
	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Duration of streamed feedback generation in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"}, // status: success, error
	)

	// generationsTotal counts feedback generations by outcome.
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Total number of feedback generations",
		},
		[]string{"status"}, // status: success, error
	)

	// scoringDuration is a histogram of score extraction time.
	scoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Duration of score extraction calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// scoringsTotal counts score extractions by outcome.
	scoringsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorings_total",
			Help:      "Total number of score extractions",
		},
		[]string{"status"}, // status: success, parse_error
	)

	// relayFramesTotal counts frames offered to the relay channel.
	relayFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_frames_total",
			Help:      "Total number of frames handled by the relay channel",
		},
		[]string{"outcome"}, // outcome: sent, queued, dropped
	)

	// relayConnected is 1 while the relay socket is connected.
	relayConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connected",
			Help:      "Whether the relay channel is currently connected",
		},
	)

	// relayReconnectsTotal counts dial attempts after the first connection.
	relayReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_reconnects_total",
			Help:      "Total number of relay reconnect attempts",
		},
	)

	// sessionsTotal counts finalized sessions by persistence outcome.
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finalized practice sessions",
		},
		[]string{"status"}, // status: saved, failed
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		framesCapturedTotal,
		batchesDispatchedTotal,
		batchesInFlight,
		batchDuration,
		generationDuration,
		generationsTotal,
		scoringDuration,
		scoringsTotal,
		relayFramesTotal,
		relayConnected,
		relayReconnectsTotal,
		sessionsTotal,
	}
)

// RecordFrameCaptured records a sampled frame.
func RecordFrameCaptured() {
	framesCapturedTotal.Inc()
}

// RecordBatchStart records a dispatched batch.
func RecordBatchStart() {
	batchesDispatchedTotal.Inc()
	batchesInFlight.Inc()
}

// RecordBatchEnd records a completed batch.
func RecordBatchEnd(durationSeconds float64) {
	batchesInFlight.Dec()
	batchDuration.Observe(durationSeconds)
}

// RecordGeneration records a feedback generation.
func RecordGeneration(status string, durationSeconds float64) {
	generationDuration.WithLabelValues(status).Observe(durationSeconds)
	generationsTotal.WithLabelValues(status).Inc()
}

// RecordScoring records a score extraction.
func RecordScoring(status string, durationSeconds float64) {
	scoringDuration.Observe(durationSeconds)
	scoringsTotal.WithLabelValues(status).Inc()
}

// RecordRelayFrame records a relay frame outcome.
func RecordRelayFrame(outcome string) {
	relayFramesTotal.WithLabelValues(outcome).Inc()
}

// RecordRelayConnected sets the relay connection gauge.
func RecordRelayConnected(connected bool) {
	if connected {
		relayConnected.Set(1)
		return
	}
	relayConnected.Set(0)
}

// RecordRelayReconnect records a reconnect attempt.
func RecordRelayReconnect() {
	relayReconnectsTotal.Inc()
}

// RecordSession records a session persistence outcome.
func RecordSession(status string) {
	sessionsTotal.WithLabelValues(status).Inc()
}
