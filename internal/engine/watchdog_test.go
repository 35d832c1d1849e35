package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdog_Idle(t *testing.T) {
	w := NewWatchdog(time.Hour, time.Minute, func() bool { return true })

	now := time.Now()
	assert.False(t, w.Idle(now))
	assert.True(t, w.Idle(now.Add(2*time.Hour)))

	w.RecordActivity()
	assert.False(t, w.Idle(time.Now().Add(30*time.Minute)))
}

func TestWatchdog_FiresOnceAndStops(t *testing.T) {
	var calls atomic.Int32
	w := NewWatchdog(20*time.Millisecond, 5*time.Millisecond, func() bool {
		calls.Add(1)
		return true
	})
	go w.Run()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not stop after handling idle process")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatchdog_RetriesWhenBusy(t *testing.T) {
	var calls atomic.Int32
	w := NewWatchdog(10*time.Millisecond, 5*time.Millisecond, func() bool {
		return calls.Add(1) >= 3
	})
	go w.Run()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not stop")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestWatchdog_ActivityKeepsAlive(t *testing.T) {
	var calls atomic.Int32
	w := NewWatchdog(200*time.Millisecond, 5*time.Millisecond, func() bool {
		calls.Add(1)
		return true
	})
	go w.Run()
	defer w.Abort()

	for i := 0; i < 10; i++ {
		w.RecordActivity()
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestWatchdog_Abort(t *testing.T) {
	w := NewWatchdog(time.Hour, time.Millisecond, func() bool { return true })
	go w.Run()

	w.Abort()
	w.Abort()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("abort did not stop the watchdog")
	}
	require.False(t, w.Idle(time.Now()))
}
