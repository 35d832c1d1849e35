package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Watchdog calls onIdle once no activity has been recorded for longer than
// the idle timeout. It is one-shot: after onIdle reports that it handled the
// process, the watchdog stops and a new one must be created for the next
// process.
type Watchdog struct {
	idleTimeout  time.Duration
	pollInterval time.Duration
	onIdle       func() bool

	lastActivity atomic.Int64
	stopOnce     sync.Once
	stop         chan struct{}
	done         chan struct{}
}

// NewWatchdog creates a watchdog. onIdle returns false when it could not act
// on this tick (for example because an exchange is in flight); the watchdog
// then keeps polling.
func NewWatchdog(idleTimeout, pollInterval time.Duration, onIdle func() bool) *Watchdog {
	w := &Watchdog{
		idleTimeout:  idleTimeout,
		pollInterval: pollInterval,
		onIdle:       onIdle,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	w.RecordActivity()
	return w
}

func (w *Watchdog) RecordActivity() {
	w.lastActivity.Store(time.Now().UnixNano())
}

func (w *Watchdog) LastActivity() time.Time {
	return time.Unix(0, w.lastActivity.Load())
}

// Idle reports whether more than the idle timeout has elapsed at now.
func (w *Watchdog) Idle(now time.Time) bool {
	return now.Sub(w.LastActivity()) > w.idleTimeout
}

// Abort stops the polling loop without touching the process.
func (w *Watchdog) Abort() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Done is closed when Run returns.
func (w *Watchdog) Done() <-chan struct{} {
	return w.done
}

func (w *Watchdog) Run() {
	defer close(w.done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case now := <-ticker.C:
			if !w.Idle(now) {
				continue
			}
			if w.onIdle() {
				return
			}
		}
	}
}
