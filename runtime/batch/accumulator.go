// Package batch groups sampled frames into fixed-size batches and hands them
// to a processor one at a time.
//
// At most one batch is in flight per Accumulator. The in-flight flag is
// checked and set under the same mutex that guards the frame buffer, so
// frames added from any goroutine never trigger a second concurrent
// dispatch. Batches are therefore processed in capture order.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AltairaLabs/barre/runtime/logger"
	"github.com/AltairaLabs/barre/runtime/types"
)

// DefaultSize is the number of frames per batch.
const DefaultSize = 10

// Processor handles one batch. It runs on its own goroutine; the next batch
// is not dispatched until it returns.
type Processor func(ctx context.Context, b types.Batch)

// Observer receives dispatch and completion notifications, typically for
// metrics.
type Observer interface {
	BatchDispatched(b types.Batch)
	BatchCompleted(b types.Batch, elapsed time.Duration)
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithContext sets the context passed to the processor.
func WithContext(ctx context.Context) Option {
	return func(a *Accumulator) { a.ctx = ctx }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(a *Accumulator) { a.observer = o }
}

// Accumulator buffers frames and releases fixed-size batches.
type Accumulator struct {
	size     int
	process  Processor
	ctx      context.Context
	observer Observer

	mu       sync.Mutex
	buf      []types.Frame
	active   bool
	inFlight bool
	seq      uint64

	wg sync.WaitGroup
}

// New creates an inactive accumulator releasing batches of size frames.
func New(size int, process Processor, opts ...Option) *Accumulator {
	if size <= 0 {
		size = DefaultSize
	}
	a := &Accumulator{
		size:    size,
		process: process,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add appends a frame and dispatches a batch if one is ready.
func (a *Accumulator) Add(f types.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = append(a.buf, f)
	a.dispatchLocked()
}

// SetActive enables or disables dispatching. Frames keep accumulating while
// inactive; activating dispatches any ready batch.
func (a *Accumulator) SetActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = active
	a.dispatchLocked()
}

// Active reports whether batches may be dispatched.
func (a *Accumulator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Discard drops all buffered frames and returns how many were dropped. A
// short final batch is never flushed.
func (a *Accumulator) Discard() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.buf)
	a.buf = nil
	return n
}

// Pending returns the number of buffered frames not yet dispatched.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// InFlight reports whether a batch is being processed.
func (a *Accumulator) InFlight() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// Wait blocks until no batch is in flight and none can be dispatched.
func (a *Accumulator) Wait() {
	a.wg.Wait()
}

// dispatchLocked takes the first size frames as a batch when the accumulator
// is active and idle. Must be called with a.mu held.
func (a *Accumulator) dispatchLocked() {
	if !a.active || a.inFlight || len(a.buf) < a.size {
		return
	}

	frames := make([]types.Frame, a.size)
	copy(frames, a.buf[:a.size])
	a.buf = append(a.buf[:0:0], a.buf[a.size:]...)
	a.seq++
	b := types.Batch{Seq: a.seq, Frames: frames}

	a.inFlight = true
	a.wg.Add(1)
	if a.observer != nil {
		a.observer.BatchDispatched(b)
	}
	go a.run(b)
}

func (a *Accumulator) run(b types.Batch) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Batch processor panicked", "batch_seq", b.Seq, "panic", fmt.Sprint(r))
		}
		if a.observer != nil {
			a.observer.BatchCompleted(b, time.Since(start))
		}

		a.mu.Lock()
		a.inFlight = false
		a.dispatchLocked()
		a.mu.Unlock()

		a.wg.Done()
	}()

	a.process(a.ctx, b)
}
