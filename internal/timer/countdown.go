package timer

import (
	"sync"
	"time"
)

// Countdown is a pausable phase timer. Timeout and a manual Expire share one callback,
// which runs at most once.
type Countdown struct {
	clock    Clock
	duration time.Duration
	onExpire func()

	mu        sync.Mutex
	elapsed   time.Duration
	startedAt time.Time
	running   bool
	done      bool
	pending   Stopper
}

func NewCountdown(clock Clock, d time.Duration, onExpire func()) *Countdown {
	if clock == nil {
		clock = System
	}
	return &Countdown{clock: clock, duration: d, onExpire: onExpire}
}

// Start runs the countdown from the beginning.
func (c *Countdown) Start() {
	c.StartAt(0, false)
}

// StartAt resumes a countdown that already consumed elapsed, optionally frozen.
// Late joiners use it to pick up the server's phase clock.
func (c *Countdown) StartAt(elapsed time.Duration, paused bool) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.elapsed = elapsed
	if paused {
		c.mu.Unlock()
		return
	}
	expired := c.runLocked()
	c.mu.Unlock()
	if expired {
		c.fire()
	}
}

// Pause freezes the countdown. It reports false if it was not running.
func (c *Countdown) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.done {
		return false
	}
	c.elapsed += c.clock.Now().Sub(c.startedAt)
	c.stopLocked()
	return true
}

// Resume continues from the elapsed time recorded at pause.
func (c *Countdown) Resume() bool {
	c.mu.Lock()
	if c.running || c.done {
		c.mu.Unlock()
		return false
	}
	expired := c.runLocked()
	c.mu.Unlock()
	if expired {
		c.fire()
	}
	return true
}

// Remaining is the time left, frozen while paused.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return 0
	}
	elapsed := c.elapsed
	if c.running {
		elapsed += c.clock.Now().Sub(c.startedAt)
	}
	if left := c.duration - elapsed; left > 0 {
		return left
	}
	return 0
}

// Paused reports whether the countdown is frozen and not finished.
func (c *Countdown) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.running && !c.done
}

// Done reports whether the callback already ran or the countdown was stopped.
func (c *Countdown) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Expire fires the callback now, the same way a timeout would. It reports false if
// the countdown had already finished.
func (c *Countdown) Expire() bool {
	return c.fire()
}

// Stop cancels the countdown without running the callback.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.done = true
}

func (c *Countdown) runLocked() bool {
	left := c.duration - c.elapsed
	if left <= 0 {
		return true
	}
	c.startedAt = c.clock.Now()
	c.running = true
	c.pending = c.clock.AfterFunc(left, func() { c.fire() })
	return false
}

func (c *Countdown) stopLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.running = false
}

func (c *Countdown) fire() bool {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return false
	}
	c.done = true
	c.stopLocked()
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
	return true
}
