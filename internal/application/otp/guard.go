package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
	"github.com/redis/go-redis/v9"
)

// reserveScript refuses when the attempt budget is spent (-1) or a code is
// already live (-2). Otherwise it stores the code, counts the attempt with a
// window fixed at the first attempt, and moves the login marker to issued
// with the code's TTL so the code cannot outlive it.
//
// KEYS: otp, attempts, login_request
// ARGV: code, ttl seconds, max attempts, window seconds, now unix
var reserveScript = redis.NewScript(`
local attempts = tonumber(redis.call('GET', KEYS[2]) or '0')
if attempts >= tonumber(ARGV[3]) then
  return -1
end
if redis.call('EXISTS', KEYS[1]) == 1 then
  return -2
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
local n = redis.call('INCR', KEYS[2])
if n == 1 then
  redis.call('EXPIRE', KEYS[2], ARGV[4])
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  redis.call('HSET', KEYS[3], 'state', 'issued', 'issued_at', ARGV[5])
  redis.call('EXPIRE', KEYS[3], ARGV[2])
end
return n
`)

// Guard enforces the per-identity issuance budget.
type Guard struct {
	rdb redis.Cmdable
	cfg Settings
	now func() time.Time
}

func NewGuard(rdb redis.Cmdable, s Settings) *Guard {
	return &Guard{rdb: rdb, cfg: s, now: time.Now}
}

// Check returns domain.ErrRateLimited when the identity has used its
// attempts for the current window. It never reveals whether a code is live.
func (g *Guard) Check(ctx context.Context, id phone.Identity) error {
	n, err := g.rdb.Get(ctx, attemptsKey(id)).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read attempts %s: %w", id, err)
	}
	if n >= g.cfg.MaxAttempts {
		return domain.ErrRateLimited
	}
	return nil
}

// Reserve atomically stores code for id and counts the attempt. It returns
// the attempt number within the window.
func (g *Guard) Reserve(ctx context.Context, id phone.Identity, code string) (int, error) {
	keys := []string{otpKey(id), attemptsKey(id), loginRequestKey(id)}
	n, err := reserveScript.Run(ctx, g.rdb, keys,
		code,
		seconds(g.cfg.TTL),
		g.cfg.MaxAttempts,
		seconds(g.cfg.CooldownWindow),
		g.now().Unix(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reserve otp %s: %w", id, err)
	}
	switch n {
	case -1:
		return 0, domain.ErrRateLimited
	case -2:
		return 0, domain.ErrOTPAlreadySent
	}
	return n, nil
}
