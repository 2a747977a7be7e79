package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Avatar/internal/domain"
)

func TestMuteRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewMuteRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	a, b := domain.ViewerID("a"), domain.ViewerID("b")
	assert.True(t, rl.Allow(a))
	assert.True(t, rl.Allow(a))
	assert.False(t, rl.Allow(a))
	assert.True(t, rl.Allow(b), "limits are per viewer")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow(a))
}

func TestMuteRateLimiter_Disabled(t *testing.T) {
	rl := NewMuteRateLimiter(0, time.Second)
	for range 100 {
		assert.True(t, rl.Allow("a"))
	}
}
