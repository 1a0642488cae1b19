package timer

import (
	"sync"
	"time"
)

// Race waits for an expected event; if it does not arrive within the deadline the
// fallback runs instead. Exactly one side wins and the other is cancelled.
type Race struct {
	mu      sync.Mutex
	pending Stopper
	settled bool
}

// NewRace arms the fallback to run after d unless Arrived is called first.
func NewRace(clock Clock, d time.Duration, fallback func()) *Race {
	if clock == nil {
		clock = System
	}
	r := &Race{}
	r.mu.Lock()
	r.pending = clock.AfterFunc(d, func() {
		if r.settle() {
			fallback()
		}
	})
	r.mu.Unlock()
	return r
}

// Arrived records that the event came in. It reports true if the event won.
func (r *Race) Arrived() bool {
	if !r.settle() {
		return false
	}
	r.mu.Lock()
	if r.pending != nil {
		r.pending.Stop()
	}
	r.mu.Unlock()
	return true
}

// Cancel abandons the race; neither side runs afterwards.
func (r *Race) Cancel() {
	r.Arrived()
}

// Settled reports whether either side already won.
func (r *Race) Settled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settled
}

func (r *Race) settle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled {
		return false
	}
	r.settled = true
	return true
}
