package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"OTP_TTL", "OTP_MAX_ATTEMPTS", "JWT_EXPIRY", "SESSION_STORE", "WHATSAPP_TYPING_DELAY", "TRUST_PROXY"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5*time.Minute, cfg.OTP.CooldownWindow)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, 12*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, "file", cfg.WhatsApp.SessionStore)
	assert.Equal(t, 1500*time.Millisecond, cfg.WhatsApp.TypingDelay)
	assert.False(t, cfg.TrustProxy)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("OTP_MAX_ATTEMPTS", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TRUST_PROXY", "true")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.OTP.TTL)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.TrustProxy)
}

func TestLoad_MalformedFallsBack(t *testing.T) {
	t.Setenv("OTP_COOLDOWN_WINDOW", "an hour")
	t.Setenv("OTP_MAX_ATTEMPTS", "three")
	t.Setenv("TRUST_PROXY", "maybe")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.OTP.CooldownWindow)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.False(t, cfg.TrustProxy)
}
