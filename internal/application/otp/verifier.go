package otp

import (
	"context"
	"fmt"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
	"github.com/redis/go-redis/v9"
)

// consumeScript returns 0 when no code is cached, -1 on mismatch (the code
// is kept), and 1 after deleting the code, its attempt counter and the
// login marker.
//
// KEYS: otp, attempts, login_request
// ARGV: submitted code
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return 0
end
if v ~= ARGV[1] then
  return -1
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3])
return 1
`)

// Verifier consumes submitted codes. A matching code can be used once.
type Verifier struct {
	rdb    redis.Cmdable
	expiry *ExpiryScheduler
}

func NewVerifier(rdb redis.Cmdable, expiry *ExpiryScheduler) *Verifier {
	return &Verifier{rdb: rdb, expiry: expiry}
}

// Verify returns domain.ErrOTPNotFound or domain.ErrOTPMismatch, or nil once
// the code has been consumed.
func (v *Verifier) Verify(ctx context.Context, id phone.Identity, code string) error {
	keys := []string{otpKey(id), attemptsKey(id), loginRequestKey(id)}
	res, err := consumeScript.Run(ctx, v.rdb, keys, code).Int()
	if err != nil {
		return fmt.Errorf("verify otp %s: %w", id, err)
	}
	switch res {
	case 0:
		return domain.ErrOTPNotFound
	case -1:
		return domain.ErrOTPMismatch
	}
	if v.expiry != nil {
		v.expiry.Cancel(id)
	}
	return nil
}
