package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rewardhive/backend/cache"
)

// ReputationMiddleware cuts off source addresses that keep failing
// postback authenticity checks. Handlers report failures through
// RecordFailure; once an address crosses the threshold inside the
// window, further postbacks from it are refused before any parsing
// happens.
type ReputationMiddleware struct {
	counter   cache.Counter
	threshold int64
	window    time.Duration
}

// NewReputationMiddleware creates the abuse-cutoff middleware. A
// threshold of zero disables the cutoff entirely.
func NewReputationMiddleware(counter cache.Counter, threshold int64, window time.Duration) *ReputationMiddleware {
	return &ReputationMiddleware{
		counter:   counter,
		threshold: threshold,
		window:    window,
	}
}

// Guard refuses requests from addresses over the failure threshold.
// The response mirrors the authenticity-rejection contract so probing
// callers cannot tell the cutoff from an ordinary rejection.
func (m *ReputationMiddleware) Guard() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m.threshold <= 0 {
			return c.Next()
		}
		count, err := m.counter.Get(c.Context(), failureKey(c.IP()))
		if err != nil {
			// Counter backend down; postbacks must keep flowing.
			return c.Next()
		}
		if count >= m.threshold {
			return c.Status(fiber.StatusForbidden).SendString("FORBIDDEN_IP")
		}
		return c.Next()
	}
}

// RecordFailure counts one authenticity failure for the address
func (m *ReputationMiddleware) RecordFailure(c fiber.Ctx) {
	if m.threshold <= 0 {
		return
	}
	_, _ = m.counter.Incr(c.Context(), failureKey(c.IP()), m.window)
}

func failureKey(ip string) string {
	return "postback_auth_fail:" + ip
}
