package prometheus

import (
	"sync"
	"time"

	"github.com/AltairaLabs/barre/runtime/relay"
	"github.com/AltairaLabs/barre/runtime/types"
)

// Status constants for metric labels.
const (
	statusSuccess    = "success"
	statusError      = "error"
	statusParseError = "parse_error"
	statusSaved      = "saved"
	statusFailed     = "failed"

	outcomeSent    = "sent"
	outcomeQueued  = "queued"
	outcomeDropped = "dropped"
)

// MetricsListener records pipeline notifications as Prometheus metrics. It
// satisfies the batch, feedback, scoring and relay Observer interfaces.
type MetricsListener struct {
	mu        sync.Mutex
	connected bool
	dialed    bool
}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// FrameCaptured records a sampled frame. It has the capture.Consumer signature.
func (l *MetricsListener) FrameCaptured(types.Frame) {
	RecordFrameCaptured()
}

// BatchDispatched implements batch.Observer.
func (l *MetricsListener) BatchDispatched(types.Batch) {
	RecordBatchStart()
}

// BatchCompleted implements batch.Observer.
func (l *MetricsListener) BatchCompleted(_ types.Batch, elapsed time.Duration) {
	RecordBatchEnd(elapsed.Seconds())
}

// GenerationFinished implements feedback.Observer.
func (l *MetricsListener) GenerationFinished(elapsed time.Duration, failed bool) {
	status := statusSuccess
	if failed {
		status = statusError
	}
	RecordGeneration(status, elapsed.Seconds())
}

// ScoringFinished implements scoring.Observer.
func (l *MetricsListener) ScoringFinished(elapsed time.Duration, parseFailed bool) {
	status := statusSuccess
	if parseFailed {
		status = statusParseError
	}
	RecordScoring(status, elapsed.Seconds())
}

// FrameSent implements relay.Observer.
func (l *MetricsListener) FrameSent() { RecordRelayFrame(outcomeSent) }

// FrameQueued implements relay.Observer.
func (l *MetricsListener) FrameQueued() { RecordRelayFrame(outcomeQueued) }

// FrameDropped implements relay.Observer.
func (l *MetricsListener) FrameDropped() { RecordRelayFrame(outcomeDropped) }

// StateChanged implements relay.Observer. Every dial after the first counts
// as a reconnect.
func (l *MetricsListener) StateChanged(s relay.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	//exhaustive:ignore
	switch s {
	case relay.StateConnecting:
		if l.dialed {
			RecordRelayReconnect()
		}
		l.dialed = true
	case relay.StateConnected:
		l.connected = true
		RecordRelayConnected(true)
	default:
		if l.connected {
			l.connected = false
			RecordRelayConnected(false)
		}
	}
}

// SessionSaved records a report accepted by the backend.
func (l *MetricsListener) SessionSaved() { RecordSession(statusSaved) }

// SessionSaveFailed records a report the backend rejected.
func (l *MetricsListener) SessionSaveFailed() { RecordSession(statusFailed) }
