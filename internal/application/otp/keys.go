package otp

import (
	"time"

	"github.com/go-whatsapp-otp/internal/pkg/phone"
)

// Cache key prefixes. Other services read these keys, so the names are fixed.
const (
	otpPrefix          = "otp:"
	attemptsPrefix     = "otp_attempts:"
	loginRequestPrefix = "login_request:"
)

func otpKey(id phone.Identity) string          { return otpPrefix + id.Standardized }
func attemptsKey(id phone.Identity) string     { return attemptsPrefix + id.Standardized }
func loginRequestKey(id phone.Identity) string { return loginRequestPrefix + id.Standardized }

// Settings are the timings shared by the guard, issuer and verifier.
type Settings struct {
	TTL             time.Duration
	CooldownWindow  time.Duration
	MaxAttempts     int
	LoginRequestTTL time.Duration
}

// DefaultSettings returns the production timings.
func DefaultSettings() Settings {
	return Settings{
		TTL:             5 * time.Minute,
		CooldownWindow:  5 * time.Minute,
		MaxAttempts:     3,
		LoginRequestTTL: 5 * time.Minute,
	}
}

// seconds converts d to whole seconds for EX/EXPIRE, never less than one.
func seconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
