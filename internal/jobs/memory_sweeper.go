// memory_sweeper.go implements MemorySweeper, which evicts expired entries from the
// in-process session activity store and OTP attempt limiter used when Redis is not
// configured. Redis expires keys on its own, so the sweeper only runs without it.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sweepable is an in-memory store with expiring entries.
type Sweepable interface {
	Sweep()
}

// MemorySweeper calls Sweep on each store every interval.
type MemorySweeper struct {
	stores   []Sweepable
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemorySweeper creates a sweeper. A non-positive interval defaults to 5 minutes.
func NewMemorySweeper(interval time.Duration, stores ...Sweepable) *MemorySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &MemorySweeper{stores: stores, interval: interval, stopChan: make(chan struct{})}
}

// Start sweeps on every tick until ctx is cancelled or Stop is called.
func (s *MemorySweeper) Start(ctx context.Context) {
	if len(s.stores) == 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Memory sweeper started (interval: %v, stores: %d)", s.interval, len(s.stores))
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (s *MemorySweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *MemorySweeper) sweep() {
	for _, st := range s.stores {
		st.Sweep()
	}
}
