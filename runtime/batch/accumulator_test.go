package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/barre/pkg/testutil"
	"github.com/AltairaLabs/barre/runtime/types"
)

type recorder struct {
	mu      sync.Mutex
	batches []types.Batch
}

func (r *recorder) process(_ context.Context, b types.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recorder) seqs() [][]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]uint64, len(r.batches))
	for i, b := range r.batches {
		for _, f := range b.Frames {
			out[i] = append(out[i], f.Seq)
		}
	}
	return out
}

func TestBatchesPreserveCaptureOrder(t *testing.T) {
	var rec recorder
	acc := New(3, rec.process)
	acc.SetActive(true)

	for _, f := range testutil.Frames(9) {
		acc.Add(f)
	}
	acc.Wait()

	assert.Equal(t, [][]uint64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, rec.seqs())
	assert.Equal(t, 0, acc.Pending())
	assert.False(t, acc.InFlight())
}

func TestBatchSequenceNumbers(t *testing.T) {
	var rec recorder
	acc := New(2, rec.process)
	acc.SetActive(true)
	for _, f := range testutil.Frames(4) {
		acc.Add(f)
	}
	acc.Wait()

	require.Len(t, rec.batches, 2)
	assert.Equal(t, uint64(1), rec.batches[0].Seq)
	assert.Equal(t, uint64(2), rec.batches[1].Seq)
}

func TestSingleInFlight(t *testing.T) {
	var concurrent, maxConcurrent, calls int32
	release := make(chan struct{})

	acc := New(2, func(_ context.Context, _ types.Batch) {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if n <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, n) {
				break
			}
		}
		atomic.AddInt32(&calls, 1)
		<-release
		atomic.AddInt32(&concurrent, -1)
	})
	acc.SetActive(true)

	var wg sync.WaitGroup
	for _, f := range testutil.Frames(10) {
		wg.Add(1)
		go func(f types.Frame) {
			defer wg.Done()
			acc.Add(f)
		}(f)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	assert.True(t, acc.InFlight())
	assert.Equal(t, 8, acc.Pending())

	close(release)
	acc.Wait()

	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
	assert.Equal(t, 0, acc.Pending())
}

func TestInactiveAccumulatesWithoutDispatch(t *testing.T) {
	var rec recorder
	acc := New(2, rec.process)

	for _, f := range testutil.Frames(5) {
		acc.Add(f)
	}
	assert.Equal(t, 5, acc.Pending())
	assert.Empty(t, rec.seqs())

	acc.SetActive(true)
	acc.Wait()
	assert.Equal(t, [][]uint64{{1, 2}, {3, 4}}, rec.seqs())
	assert.Equal(t, 1, acc.Pending())
}

func TestDiscardDropsPartialBatch(t *testing.T) {
	var rec recorder
	acc := New(10, rec.process)
	acc.SetActive(true)
	for _, f := range testutil.Frames(7) {
		acc.Add(f)
	}
	acc.SetActive(false)

	assert.Equal(t, 7, acc.Discard())
	assert.Equal(t, 0, acc.Pending())
	acc.Wait()
	assert.Empty(t, rec.seqs())
}

func TestPanicClearsInFlight(t *testing.T) {
	var calls int32
	acc := New(1, func(_ context.Context, _ types.Batch) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
	})
	acc.SetActive(true)
	acc.Add(testutil.Frame(1))
	acc.Add(testutil.Frame(2))
	acc.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.False(t, acc.InFlight())
}

type countingObserver struct {
	dispatched, completed int32
}

func (o *countingObserver) BatchDispatched(types.Batch) { atomic.AddInt32(&o.dispatched, 1) }
func (o *countingObserver) BatchCompleted(types.Batch, time.Duration) {
	atomic.AddInt32(&o.completed, 1)
}

func TestObserverAndContext(t *testing.T) {
	type ctxKey struct{}
	obs := &countingObserver{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")

	var got atomic.Value
	acc := New(1, func(ctx context.Context, _ types.Batch) {
		got.Store(ctx.Value(ctxKey{}))
	}, WithObserver(obs), WithContext(ctx))
	acc.SetActive(true)
	acc.Add(testutil.Frame(1))
	acc.Wait()

	assert.Equal(t, "v", got.Load())
	assert.Equal(t, int32(1), atomic.LoadInt32(&obs.dispatched))
	assert.Equal(t, int32(1), atomic.LoadInt32(&obs.completed))
}

func TestDefaultSize(t *testing.T) {
	acc := New(0, func(context.Context, types.Batch) {})
	assert.Equal(t, DefaultSize, acc.size)
}
