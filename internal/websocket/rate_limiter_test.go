package websocket

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < rateLimit; i++ {
		if !rl.Allow("teacher-1") {
			t.Fatalf("message %d denied inside the window", i+1)
		}
	}
	if rl.Allow("teacher-1") {
		t.Error("message over the limit allowed")
	}
}

func TestRateLimiterIsPerUser(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < rateLimit; i++ {
		rl.Allow("teacher-1")
	}
	if !rl.Allow("teacher-2") {
		t.Error("one user's burst throttled another user")
	}
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < rateLimit; i++ {
		rl.Allow("teacher-1")
	}
	// Age the window out instead of sleeping through it.
	rl.clients["teacher-1"].windowStart = time.Now().Add(-2 * rateWindow)

	if !rl.Allow("teacher-1") {
		t.Error("fresh window still throttled")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	rl.Allow("idle-user")
	rl.Allow("busy-user")
	rl.clients["idle-user"].windowStart = time.Now().Add(-10 * rateWindow)

	rl.Cleanup()

	if _, ok := rl.clients["idle-user"]; ok {
		t.Error("stale entry survived cleanup")
	}
	if _, ok := rl.clients["busy-user"]; !ok {
		t.Error("fresh entry dropped by cleanup")
	}
}

func TestRateLimiterJanitorSweeps(t *testing.T) {
	rl := newRateLimiter(5 * time.Millisecond)
	defer rl.Stop()

	rl.Allow("idle-user")
	rl.mu.Lock()
	rl.clients["idle-user"].windowStart = time.Now().Add(-10 * rateWindow)
	rl.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rl.mu.Lock()
		_, ok := rl.clients["idle-user"]
		rl.mu.Unlock()
		if !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("janitor never swept the stale entry")
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter()
	rl.Stop()
	rl.Stop()
}
