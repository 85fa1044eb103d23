package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errCooldownBackend = errors.New("resend cooldown backend unavailable")

// resendCooldownLimiter gates resends per phone number with a fixed Redis
// cooldown key. This is a UX throttle only; the provider's own rate limiting
// remains authoritative for send volume.
type resendCooldownLimiter struct {
	redis    *redis.Client
	prefix   string
	cooldown time.Duration
}

func newResendCooldownLimiter(redisClient *redis.Client, prefix string, cooldown time.Duration) *resendCooldownLimiter {
	return &resendCooldownLimiter{
		redis:    redisClient,
		prefix:   prefix,
		cooldown: cooldown,
	}
}

func (l *resendCooldownLimiter) key(phone string) string {
	return l.prefix + ":cd:" + phone
}

// Arm starts (or restarts) the cooldown window after a successful send.
func (l *resendCooldownLimiter) Arm(ctx context.Context, phone string) error {
	if err := l.redis.Set(ctx, l.key(phone), 1, l.cooldown).Err(); err != nil {
		return fmt.Errorf("%w: %v", errCooldownBackend, err)
	}
	return nil
}

// Reserve claims the right to resend: it succeeds for exactly one caller per
// elapsed cooldown window (SET NX re-arms the window atomically) and fails
// with ErrResendCooldown while the window is active.
func (l *resendCooldownLimiter) Reserve(ctx context.Context, phone string) error {
	ok, err := l.redis.SetNX(ctx, l.key(phone), 1, l.cooldown).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errCooldownBackend, err)
	}
	if !ok {
		return ErrResendCooldown
	}
	return nil
}

// Release cancels a reservation whose send failed, so the user is not locked
// out for a full window by a provider error.
func (l *resendCooldownLimiter) Release(ctx context.Context, phone string) error {
	if err := l.redis.Del(ctx, l.key(phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errCooldownBackend, err)
	}
	return nil
}

// Remaining reports how long the active window still has, zero when expired.
func (l *resendCooldownLimiter) Remaining(ctx context.Context, phone string) (time.Duration, error) {
	d, err := l.redis.PTTL(ctx, l.key(phone)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errCooldownBackend, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
