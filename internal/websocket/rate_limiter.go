package websocket

import (
	"sync"
	"time"
)

// rateLimit is the per-sender whiteboard event budget per window.
const (
	rateLimit  = 100
	rateWindow = time.Minute
)

// RateLimiter bounds per-user message rates with a fixed per-minute window.
// A single janitor goroutine sweeps idle entries; Stop ends it.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimit
	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates an empty rate limiter and starts its janitor.
func NewRateLimiter() *RateLimiter {
	return newRateLimiter(rateWindow)
}

func newRateLimiter(sweepEvery time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientLimit),
		stop:    make(chan struct{}),
	}
	go rl.janitor(sweepEvery)
	return rl
}

func (rl *RateLimiter) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the janitor goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow reports whether the user may send another message in the current
// window. The first message of a window always passes.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, ok := rl.clients[userID]
	if !ok || now.Sub(limit.windowStart) >= rateWindow {
		rl.clients[userID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	if limit.count >= rateLimit {
		return false
	}
	limit.count++
	return true
}

// Cleanup drops entries idle for several windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for userID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rateWindow {
			delete(rl.clients, userID)
		}
	}
}
