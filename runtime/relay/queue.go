package relay

// Queue is a bounded FIFO that drops its oldest item on overflow. It is not
// safe for concurrent use; Channel guards it with its own lock.
type Queue[T any] struct {
	items   []T
	max     int
	dropped uint64
}

// NewQueue creates a queue holding at most size items (minimum 1).
func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{max: size, items: make([]T, 0, size)}
}

// Push appends v, evicting the oldest item when full. It reports whether an
// item was evicted.
func (q *Queue[T]) Push(v T) bool {
	evicted := false
	if len(q.items) >= q.max {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped++
		evicted = true
	}
	q.items = append(q.items, v)
	return evicted
}

// Requeue puts items back at the front in their original order, ahead of
// anything queued since. Overflow evicts from the front.
func (q *Queue[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	merged = append(merged, q.items...)
	if over := len(merged) - q.max; over > 0 {
		merged = merged[over:]
		q.dropped += uint64(over)
	}
	q.items = merged
}

// Drain removes and returns every queued item in insertion order.
func (q *Queue[T]) Drain() []T {
	out := q.items
	q.items = make([]T, 0, q.max)
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Cap returns the queue bound.
func (q *Queue[T]) Cap() int { return q.max }

// Dropped returns how many items have been evicted in total.
func (q *Queue[T]) Dropped() uint64 { return q.dropped }
