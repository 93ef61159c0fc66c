package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
)

// QuotaCounter counts events inside a fixed window
type QuotaCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// IngestionQuota caps how many oracle-backed requests a single admin can make
// per window. A nil counter or a non-positive limit disables it.
type IngestionQuota struct {
	counter QuotaCounter
	limit   int64
	window  time.Duration
}

// NewIngestionQuota creates a quota of limit requests per window
func NewIngestionQuota(counter QuotaCounter, limit int, window time.Duration) *IngestionQuota {
	if window <= 0 {
		window = time.Hour
	}
	return &IngestionQuota{counter: counter, limit: int64(limit), window: window}
}

// Enforce must run after AuthMiddleware so the caller is known
func (q *IngestionQuota) Enforce() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if q == nil || q.counter == nil || q.limit <= 0 {
			return c.Next()
		}

		userID, ok := GetUserID(c)
		if !ok {
			return response.Unauthorized(c, "")
		}

		key := fmt.Sprintf("ingest_quota:%d", userID)
		count, ttl, err := q.counter.IncrementWindow(c.UserContext(), key, q.window)
		if err != nil {
			// Fail open; the oracle has its own rate limiter
			return c.Next()
		}

		remaining := q.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-Quota-Limit", fmt.Sprintf("%d", q.limit))
		c.Set("X-Quota-Remaining", fmt.Sprintf("%d", remaining))

		if count > q.limit {
			retryAfter := int(ttl.Seconds())
			if retryAfter <= 0 {
				retryAfter = int(q.window.Seconds())
			}
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", retryAfter))
			return response.TooManyRequests(c, fmt.Sprintf("Ingestion quota of %d requests exceeded", q.limit))
		}

		return c.Next()
	}
}
