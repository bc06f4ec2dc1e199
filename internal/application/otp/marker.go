package otp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-whatsapp-otp/internal/pkg/phone"
	"github.com/redis/go-redis/v9"
)

// LoginState is the progress of a pending login.
type LoginState string

const (
	StateRequested LoginState = "requested"
	StateIssued    LoginState = "issued"
)

// LoginRequest is the decoded login_request marker.
type LoginRequest struct {
	State       LoginState
	RequestedAt time.Time
	IssuedAt    time.Time // zero until an OTP is issued
}

// Markers records that a login was initiated through the HTTP surface.
// The inbound trigger handler only issues codes for identities holding a
// live marker.
type Markers struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewMarkers(rdb redis.Cmdable, s Settings) *Markers {
	return &Markers{rdb: rdb, ttl: s.LoginRequestTTL, now: time.Now}
}

// Request writes a fresh marker in the requested state, replacing any
// previous one.
func (m *Markers) Request(ctx context.Context, id phone.Identity) error {
	key := loginRequestKey(id)
	_, err := m.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "state", string(StateRequested), "requested_at", m.now().Unix())
		p.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write login request %s: %w", id, err)
	}
	return nil
}

// Get returns the live marker, or nil when none exists.
func (m *Markers) Get(ctx context.Context, id phone.Identity) (*LoginRequest, error) {
	fields, err := m.rdb.HGetAll(ctx, loginRequestKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read login request %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return &LoginRequest{
		State:       LoginState(fields["state"]),
		RequestedAt: unixField(fields["requested_at"]),
		IssuedAt:    unixField(fields["issued_at"]),
	}, nil
}

func unixField(v string) time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
