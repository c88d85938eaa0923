// Package heartbeat provides the adapter's liveness counter. The hardware
// design reserves a periodic timer for it, but the shipped configuration
// leaves it disabled: nothing reads the count and no behavior depends on
// it. It is kept as a best-effort background counter for when it is
// reintroduced.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"
)

// Counter counts timer ticks in the background once started.
type Counter struct {
	interval time.Duration
	ticks    atomic.Uint64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New returns a stopped Counter ticking at the given interval once started.
func New(interval time.Duration) *Counter {
	return &Counter{interval: interval}
}

// Start begins counting. Starting a running counter does nothing.
func (c *Counter) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
}

// Stop halts counting and waits for the background goroutine to exit.
// Stopping a stopped counter does nothing. The count is retained.
func (c *Counter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}

// Count returns the number of ticks observed so far.
func (c *Counter) Count() uint64 {
	return c.ticks.Load()
}

func (c *Counter) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.ticks.Add(1)
		case <-stop:
			return
		}
	}
}
