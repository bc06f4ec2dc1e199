package otp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-whatsapp-otp/internal/pkg/phone"
	"github.com/redis/go-redis/v9"
)

// ExpiryObserver is told when an issued code lapsed without being verified.
type ExpiryObserver interface {
	OTPExpired(ctx context.Context, id phone.Identity)
}

// ExpiryObserverFunc adapts a function to ExpiryObserver.
type ExpiryObserverFunc func(ctx context.Context, id phone.Identity)

func (f ExpiryObserverFunc) OTPExpired(ctx context.Context, id phone.Identity) { f(ctx, id) }

// LogObserver logs expirations.
func LogObserver(log *slog.Logger) ExpiryObserver {
	return ExpiryObserverFunc(func(_ context.Context, id phone.Identity) {
		log.Info("otp expired unverified", "phone", id.Standardized)
	})
}

type pendingExpiry struct {
	timer *time.Timer
	code  string
}

// ExpiryScheduler keeps one timer per identity. A timer fires lead before
// the code's TTL ends and notifies observers only if the cached code is
// still the one it was scheduled for.
type ExpiryScheduler struct {
	rdb       redis.Cmdable
	lead      time.Duration
	log       *slog.Logger
	observers []ExpiryObserver

	mu      sync.Mutex
	pending map[string]*pendingExpiry
	stopped bool
}

func NewExpiryScheduler(rdb redis.Cmdable, lead time.Duration, log *slog.Logger, observers ...ExpiryObserver) *ExpiryScheduler {
	return &ExpiryScheduler{
		rdb:       rdb,
		lead:      lead,
		log:       log,
		observers: observers,
		pending:   make(map[string]*pendingExpiry),
	}
}

// Schedule replaces any pending timer for id.
func (s *ExpiryScheduler) Schedule(id phone.Identity, code string, ttl time.Duration) {
	delay := ttl - s.lead
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.pending[id.Standardized]; ok {
		prev.timer.Stop()
	}
	p := &pendingExpiry{code: code}
	p.timer = time.AfterFunc(delay, func() { s.fire(id, p) })
	s.pending[id.Standardized] = p
}

// Cancel drops the pending timer for id, if any.
func (s *ExpiryScheduler) Cancel(id phone.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[id.Standardized]; ok {
		p.timer.Stop()
		delete(s.pending, id.Standardized)
	}
}

// Pending reports how many timers are armed.
func (s *ExpiryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer. Later Schedule calls are ignored.
func (s *ExpiryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, k)
	}
	s.stopped = true
}

func (s *ExpiryScheduler) fire(id phone.Identity, p *pendingExpiry) {
	s.mu.Lock()
	if s.pending[id.Standardized] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id.Standardized)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cached, err := s.rdb.Get(ctx, otpKey(id)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && cached != p.code) {
		return
	}
	if err != nil {
		s.log.Warn("otp expiry check failed", "phone", id.Standardized, "err", err)
		return
	}
	for _, o := range s.observers {
		o.OTPExpired(ctx, id)
	}
}
