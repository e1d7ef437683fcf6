package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-user and global request rate limits.
// Uses token bucket algorithm via golang.org/x/time/rate.
type RateLimiter struct {
	mu      sync.Mutex
	global  *rate.Limiter
	users   map[string]*rate.Limiter
	perUser rate.Limit
	burst   int
}

// NewRateLimiter creates a rate limiter.
// globalRPM is the total requests/minute across all users.
// perUserRPM is the per-user requests/minute.
func NewRateLimiter(globalRPM, perUserRPM int) *RateLimiter {
	globalRate := rate.Limit(float64(globalRPM) / 60.0)
	userRate := rate.Limit(float64(perUserRPM) / 60.0)
	globalBurst := globalRPM
	if globalBurst < 1 {
		globalBurst = 1
	}
	userBurst := perUserRPM
	if userBurst < 1 {
		userBurst = 1
	}
	return &RateLimiter{
		global:  rate.NewLimiter(globalRate, globalBurst),
		users:   make(map[string]*rate.Limiter),
		perUser: userRate,
		burst:   userBurst,
	}
}

// Allow checks whether a request from the given user is allowed.
// Returns true if allowed, false if rate limited.
func (rl *RateLimiter) Allow(userID string) bool {
	if !rl.global.Allow() {
		return false
	}
	rl.mu.Lock()
	limiter, ok := rl.users[userID]
	if !ok {
		limiter = rate.NewLimiter(rl.perUser, rl.burst)
		rl.users[userID] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}
