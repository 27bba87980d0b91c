package sim

import (
	"sync"
	"time"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// Clock is an advance-only virtual clock. The simulator owns time, so
// governance delays and dispute windows elapse on demand instead of in
// real time. Advancing is monotonic; concurrent market runs only ever
// push the reading forward.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

var _ domain.Clock = (*Clock)(nil)

// NewClock pins the clock to the given start instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
// Non-positive d reads without moving.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}
