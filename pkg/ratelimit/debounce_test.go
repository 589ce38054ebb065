package ratelimit

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalescesBurst(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
	}
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return calls.Load() == 1 },
		time.Second, 5*time.Millisecond, "burst collapses to one invocation")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "no second invocation without a new trigger")
	assert.False(t, d.Pending())
}

func TestDebouncerRearmsAfterFiring(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	d.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerFlush(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(time.Hour, func() { calls.Add(1) })

	assert.False(t, d.Flush(), "nothing pending yet")

	d.Trigger()
	assert.True(t, d.Flush())
	assert.Equal(t, int32(1), calls.Load(), "flush runs the pending invocation synchronously")

	assert.False(t, d.Flush(), "flush consumed the pending invocation")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "the disarmed timer does not fire later")
}

func TestDebouncerStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, calls.Load(), "stop cancels the pending invocation")

	d.Trigger()
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, calls.Load(), "triggers after stop are dropped")
	assert.False(t, d.Flush())
}

func TestDebouncerZeroDelayIsSynchronous(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(0, func() { calls.Add(1) })

	d.Trigger()
	d.Trigger()
	assert.Equal(t, int32(2), calls.Load())

	d.Stop()
	d.Trigger()
	assert.Equal(t, int32(2), calls.Load())
}
