package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Avatar/internal/domain"
)

// MuteRateLimiter allows at most limit toggles per viewer in a sliding interval.
type MuteRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ViewerID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewMuteRateLimiter(limit int, interval time.Duration) *MuteRateLimiter {
	return &MuteRateLimiter{
		history:  make(map[domain.ViewerID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *MuteRateLimiter) Allow(id domain.ViewerID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	rl.history[id] = append(fresh, now)
	return true
}
