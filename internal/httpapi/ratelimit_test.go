package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiterApp(t *testing.T, cfg RateLimitConfig) *fiber.App {
	t.Helper()
	rl := newRateLimiter(cfg)
	t.Cleanup(rl.Stop)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get("X-Requester-ID"); id != "" {
			c.Locals(requesterKey, id)
		}
		return c.Next()
	})
	app.Use(rl.Handler())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func limiterGet(t *testing.T, app *fiber.App, path, requester string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	if requester != "" {
		req.Header.Set("X-Requester-ID", requester)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimit_PerWalletBuckets(t *testing.T) {
	app := newLimiterApp(t, RateLimitConfig{RPS: 1, Burst: 2})

	assert.Equal(t, http.StatusOK, limiterGet(t, app, "/ping", "wallet-a"))
	assert.Equal(t, http.StatusOK, limiterGet(t, app, "/ping", "wallet-a"))
	assert.Equal(t, http.StatusTooManyRequests, limiterGet(t, app, "/ping", "wallet-a"))

	// Another wallet has its own bucket.
	assert.Equal(t, http.StatusOK, limiterGet(t, app, "/ping", "wallet-b"))
}

func TestRateLimit_SkipsProbePaths(t *testing.T) {
	app := newLimiterApp(t, RateLimitConfig{RPS: 1, Burst: 1})

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, limiterGet(t, app, "/healthz", ""))
	}
}

func TestRateLimit_AnonymousFallsBackToIP(t *testing.T) {
	app := newLimiterApp(t, RateLimitConfig{RPS: 1, Burst: 1})

	assert.Equal(t, http.StatusOK, limiterGet(t, app, "/ping", ""))
	assert.Equal(t, http.StatusTooManyRequests, limiterGet(t, app, "/ping", ""))
}

func TestBucket_RefillsOverTime(t *testing.T) {
	now := time.Now()
	b := &bucket{remaining: 1, updated: now}

	assert.True(t, b.take(1, 2, now))
	assert.False(t, b.take(1, 2, now), "bucket drained")

	// One second at 1 rps refills one request.
	assert.True(t, b.take(1, 2, now.Add(time.Second)))
}

func TestBucket_CapsAtDepth(t *testing.T) {
	now := time.Now()
	b := &bucket{remaining: 0, updated: now}

	// A long idle period refills to depth, not beyond.
	later := now.Add(time.Hour)
	assert.True(t, b.take(1, 2, later))
	assert.True(t, b.take(1, 2, later))
	assert.False(t, b.take(1, 2, later))
}
