package httpapi

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig bounds request rates per wallet identity. Requests
// without an authenticated identity fall back to the client IP.
type RateLimitConfig struct {
	RPS       int      // sustained requests per second per wallet
	Burst     int      // bucket depth
	SkipPaths []string // paths exempt from limiting; probes when empty
}

// bucket tracks remaining capacity for one wallet, refilled lazily on
// each take.
type bucket struct {
	remaining float64
	updated   time.Time
}

func (b *bucket) take(rate, depth float64, now time.Time) bool {
	b.remaining += now.Sub(b.updated).Seconds() * rate
	if b.remaining > depth {
		b.remaining = depth
	}
	b.updated = now

	if b.remaining < 1 {
		return false
	}
	b.remaining--
	return true
}

type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	depth   float64
	skip    map[string]struct{}
	done    chan struct{}
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	paths := cfg.SkipPaths
	if len(paths) == 0 {
		paths = []string{"/healthz", "/readyz", "/metrics"}
	}
	skip := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		skip[p] = struct{}{}
	}

	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.RPS),
		depth:   float64(cfg.Burst),
		skip:    skip,
		done:    make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

// Stop terminates the background eviction loop.
func (rl *rateLimiter) Stop() {
	close(rl.done)
}

// evictLoop drops buckets idle long enough to have fully refilled.
func (rl *rateLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if now.Sub(b.updated) > 10*time.Minute {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{remaining: rl.depth, updated: now}
		rl.buckets[key] = b
	}
	return b.take(rl.rate, rl.depth, now)
}

// Handler returns the fiber middleware. It must run after auth so the
// wallet identity is available as the limiting key.
func (rl *rateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := rl.skip[c.Path()]; ok {
			return c.Next()
		}

		key := requesterID(c)
		if key == "" {
			key = "ip:" + c.IP()
		}

		if !rl.allow(key, time.Now()) {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Request rate limit exceeded for this wallet")
		}
		return c.Next()
	}
}
