package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_DropOldest(t *testing.T) {
	q := NewQueue[int](3)
	for i := 1; i <= 3; i++ {
		assert.False(t, q.Push(i))
	}
	assert.True(t, q.Push(4))
	assert.True(t, q.Push(5))

	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, []int{3, 4, 5}, q.Drain())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_MinimumSize(t *testing.T) {
	q := NewQueue[string](0)
	assert.Equal(t, 1, q.Cap())
	q.Push("a")
	q.Push("b")
	assert.Equal(t, []string{"b"}, q.Drain())
}

func TestQueue_Requeue(t *testing.T) {
	q := NewQueue[int](4)
	q.Push(5)
	q.Requeue([]int{2, 3, 4})
	assert.Equal(t, []int{2, 3, 4, 5}, q.Drain())

	q.Push(9)
	q.Push(10)
	q.Requeue([]int{6, 7, 8})
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, []int{7, 8, 9, 10}, q.Drain())
}

func TestBackoffPolicy_Delay(t *testing.T) {
	p := DefaultBackoffPolicy()
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, p.Delay(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, time.Second, p.Delay(0))
}

func TestBackoffPolicy_Multiplier(t *testing.T) {
	p := BackoffPolicy{Base: 100 * time.Millisecond, Multiplier: 3, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 300*time.Millisecond, p.Delay(2))
	assert.Equal(t, 900*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(1000))
}

func TestBackoffPolicy_Jitter(t *testing.T) {
	p := BackoffPolicy{Base: time.Second, Multiplier: 2, Max: 10 * time.Second, Jitter: 0.25}
	for i := 0; i < 50; i++ {
		d := p.Delay(2)
		assert.GreaterOrEqual(t, d, 1500*time.Millisecond)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}

func TestBackoffPolicy_Exhausted(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))

	forever := BackoffPolicy{}
	assert.False(t, forever.Exhausted(1000))
}
