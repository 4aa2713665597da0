// Package capture samples still frames from a live image source on a timer.
package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/media"
	"github.com/AltairaLabs/barre/runtime/types"
)

// Default sampling intervals.
const (
	DefaultInterval       = time.Second
	DefaultActiveInterval = 300 * time.Millisecond
)

// ErrSourceUnavailable is returned by a Source that is not ready to produce
// frames. The sampler treats it as a no-op tick.
var ErrSourceUnavailable = errors.New("capture: source unavailable")

// Source produces the current still image of a live video feed.
type Source interface {
	Snapshot() (image.Image, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (image.Image, error)

// Snapshot calls f.
func (f SourceFunc) Snapshot() (image.Image, error) { return f() }

// Consumer receives every sampled frame. Consumers are called synchronously
// on the sampling goroutine and must not block.
type Consumer func(types.Frame)

// Option configures a Sampler.
type Option func(*Sampler)

// WithQuality sets the JPEG quality used to encode frames.
func WithQuality(q int) Option {
	return func(s *Sampler) { s.quality = q }
}

// WithMaxWidth sets the width above which frames are scaled down.
func WithMaxWidth(w int) Option {
	return func(s *Sampler) { s.maxWidth = w }
}

// WithInterval sets the initial sampling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Sampler) { s.interval = d }
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// Sampler captures a frame from its Source on every tick, encodes it and
// emits it to all subscribed consumers. Capture failures never stop the loop.
type Sampler struct {
	src      Source
	quality  int
	maxWidth int
	now      func() time.Time

	mu        sync.Mutex
	consumers []Consumer
	interval  time.Duration
	count     uint64
	latest    *types.Frame

	intervalCh chan time.Duration
}

// NewSampler creates a sampler over src.
func NewSampler(src Source, opts ...Option) *Sampler {
	s := &Sampler{
		src:        src,
		quality:    media.DefaultQuality,
		maxWidth:   media.DefaultMaxWidth,
		now:        time.Now,
		interval:   DefaultInterval,
		intervalCh: make(chan time.Duration, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a consumer for subsequent frames.
func (s *Sampler) Subscribe(c Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers = append(s.consumers, c)
}

// Tick captures, encodes and emits one frame. It reports whether a frame was
// emitted; an unavailable source or a failed capture yields false.
func (s *Sampler) Tick() bool {
	if s.src == nil {
		return false
	}
	img, err := s.src.Snapshot()
	if err != nil {
		if !errors.Is(err, ErrSourceUnavailable) {
			logger.Debug("Frame capture failed", "error", err)
		}
		return false
	}

	enc, err := media.EncodeJPEG(img, s.quality, s.maxWidth)
	if err != nil {
		logger.Debug("Frame encode skipped", "error", err)
		return false
	}

	s.mu.Lock()
	s.count++
	frame := types.Frame{
		ID:         uuid.NewString(),
		Seq:        s.count,
		CapturedAt: s.now(),
		MIMEType:   enc.MIMEType,
		Width:      enc.Width,
		Height:     enc.Height,
		Data:       enc.Data,
	}
	s.latest = &frame
	consumers := make([]Consumer, len(s.consumers))
	copy(consumers, s.consumers)
	s.mu.Unlock()

	for _, c := range consumers {
		c(frame)
	}
	return true
}

// Run ticks until ctx is cancelled. The interval may be changed while running
// with SetInterval.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-s.intervalCh:
			ticker.Reset(d)
		case <-ticker.C:
			s.Tick()
		}
	}
}

// SetInterval changes the sampling interval. Non-positive values are ignored.
func (s *Sampler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()

	// Keep only the most recent pending change.
	select {
	case <-s.intervalCh:
	default:
	}
	select {
	case s.intervalCh <- d:
	default:
	}
}

// Interval returns the current sampling interval.
func (s *Sampler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Count returns the number of frames emitted so far.
func (s *Sampler) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Latest returns the most recently emitted frame.
func (s *Sampler) Latest() (types.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return types.Frame{}, false
	}
	return *s.latest, true
}
