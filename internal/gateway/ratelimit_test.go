package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_GlobalLimit(t *testing.T) {
	rl := NewRateLimiter(5, 100)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("user-a") {
			allowed++
		}
	}
	// Token bucket burst=5, so first 5 should be allowed, then rate-limited
	assert.LessOrEqual(t, allowed, 6, "global limit should cap requests")
	assert.GreaterOrEqual(t, allowed, 4, "burst should allow at least 4")
}

func TestRateLimiter_PerUserLimit(t *testing.T) {
	rl := NewRateLimiter(1000, 3)

	allowed := 0
	for i := 0; i < 20; i++ {
		if rl.Allow("user-a") {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, 4, "per-user limit should cap requests")

	// A different user gets its own bucket
	assert.True(t, rl.Allow("user-b"), "different user should have separate bucket")
}

func TestRateLimiter_UserIsolation(t *testing.T) {
	rl := NewRateLimiter(1000, 2)

	// Exhaust user-a's bucket
	rl.Allow("user-a")
	rl.Allow("user-a")
	rl.Allow("user-a")

	// user-b should still be allowed
	assert.True(t, rl.Allow("user-b"), "user-b should not be affected by user-a")
}
