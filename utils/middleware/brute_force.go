package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
)

// AttemptStore tracks failed logins and lockouts
type AttemptStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Lock(ctx context.Context, key string, ttl time.Duration) error
	LockedFor(ctx context.Context, key string) (time.Duration, error)
	Clear(ctx context.Context, keys ...string) error
}

// LockoutStep locks an IP for Duration once it reaches Failures inside the window
type LockoutStep struct {
	Failures int64
	Duration time.Duration
}

// DefaultLockoutSteps get longer as failures pile up. Must be sorted by
// Failures, highest first.
var DefaultLockoutSteps = []LockoutStep{
	{Failures: 25, Duration: 24 * time.Hour},
	{Failures: 10, Duration: time.Hour},
	{Failures: 5, Duration: 2 * time.Minute},
}

const failureWindow = 15 * time.Minute

// BruteForceProtection locks out IPs after repeated failed logins.
// A nil store disables it.
type BruteForceProtection struct {
	store AttemptStore
	steps []LockoutStep
}

// NewBruteForceProtection uses DefaultLockoutSteps
func NewBruteForceProtection(store AttemptStore) *BruteForceProtection {
	return &BruteForceProtection{store: store, steps: DefaultLockoutSteps}
}

func (b *BruteForceProtection) enabled() bool { return b != nil && b.store != nil }

func failuresKey(ip string) string { return "login:failures:" + ip }
func lockKey(ip string) string     { return "login:lock:" + ip }

// CheckLockout rejects requests from a locked IP with 429 and Retry-After
func (b *BruteForceProtection) CheckLockout() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !b.enabled() {
			return c.Next()
		}

		left, err := b.store.LockedFor(c.UserContext(), lockKey(c.IP()))
		if err != nil || left <= 0 {
			// An unreachable store never blocks logins
			return c.Next()
		}

		retryAfter := int(left.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		return response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
	}
}

// RecordFailedAttempt counts a failed login and locks the IP when a step is reached
func (b *BruteForceProtection) RecordFailedAttempt(ctx context.Context, ip string) error {
	if !b.enabled() {
		return nil
	}

	failures, _, err := b.store.IncrementWindow(ctx, failuresKey(ip), failureWindow)
	if err != nil {
		return err
	}

	for _, step := range b.steps {
		if failures >= step.Failures {
			return b.store.Lock(ctx, lockKey(ip), step.Duration)
		}
	}
	return nil
}

// RecordSuccessfulAttempt forgets earlier failures for ip
func (b *BruteForceProtection) RecordSuccessfulAttempt(ctx context.Context, ip string) error {
	if !b.enabled() {
		return nil
	}
	return b.store.Clear(ctx, failuresKey(ip), lockKey(ip))
}
