package middleware

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const (
	devicePrefix     = "devices:"
	defaultMaxDevice = 5
	deviceTTL        = 7 * 24 * time.Hour
)

// trackScript returns -1 when an unknown device would exceed the limit,
// otherwise records the device and returns the set size.
//
// KEYS: devices set
// ARGV: fingerprint, max devices, ttl seconds
var trackScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 0 and redis.call('SCARD', KEYS[1]) >= tonumber(ARGV[2]) then
  return -1
end
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return redis.call('SCARD', KEYS[1])
`)

// DeviceTracker refuses authenticated requests from more distinct devices
// than allowed within the tracking window. It must run after Auth.
type DeviceTracker struct {
	rdb redis.Cmdable
	max int
	log *slog.Logger
}

func NewDeviceTracker(rdb redis.Cmdable, log *slog.Logger) *DeviceTracker {
	return &DeviceTracker{rdb: rdb, max: defaultMaxDevice, log: log}
}

// Fingerprint identifies a client device by user agent and the optional
// X-Device-Id header. The network address is left out so a phone moving
// between networks stays one device.
func Fingerprint(r *http.Request) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(r.UserAgent()))
	h.Write([]byte{0})
	h.Write([]byte(r.Header.Get("X-Device-Id")))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func (d *DeviceTracker) Track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		key := devicePrefix + claims.PhoneNumber
		n, err := trackScript.Run(r.Context(), d.rdb, []string{key},
			Fingerprint(r), d.max, int64(deviceTTL/time.Second)).Int()
		if err != nil {
			// Fail open when the cache is unavailable.
			d.log.Warn("device tracking unavailable", "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if n < 0 {
			d.log.Warn("too many devices", "phone", claims.PhoneNumber)
			writeJSONError(w, http.StatusForbidden, domain.ErrorSuspiciousActivity, domain.ErrSuspicious.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}
