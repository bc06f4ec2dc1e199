package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
)

// Channel is the outbound side of the messaging channel.
type Channel interface {
	IsOpen() bool
	Send(ctx context.Context, to phone.Identity, text string) error
}

// Issuer generates, stores and delivers one-time passcodes.
type Issuer struct {
	guard   *Guard
	channel Channel
	expiry  *ExpiryScheduler
	cfg     Settings
	log     *slog.Logger
	codes   func() (string, error)
	now     func() time.Time
}

func NewIssuer(guard *Guard, channel Channel, expiry *ExpiryScheduler, s Settings, log *slog.Logger) *Issuer {
	return &Issuer{
		guard:   guard,
		channel: channel,
		expiry:  expiry,
		cfg:     s,
		log:     log,
		codes:   generateCode,
		now:     time.Now,
	}
}

// Issue delivers a fresh code to id. Errors are domain.ErrRateLimited,
// domain.ErrOTPAlreadySent or domain.ErrDeliveryFailed; anything else is a
// cache failure.
//
// The code is cached before it is sent. A failed send keeps the record so a
// code that did reach the user stays valid, and its expiry is still watched.
func (i *Issuer) Issue(ctx context.Context, id phone.Identity) error {
	if !i.channel.IsOpen() {
		return domain.ErrDeliveryFailed.Wrap(domain.ErrTransport.Wrap(fmt.Errorf("messaging channel not open")))
	}
	if err := i.guard.Check(ctx, id); err != nil {
		return err
	}

	code, err := i.codes()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	reservedAt := i.now()
	attempt, err := i.guard.Reserve(ctx, id, code)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Your OTP is: %s. Valid for %d minutes.", code, int(i.cfg.TTL.Minutes()))
	sendErr := i.channel.Send(ctx, id, text)

	// The record's TTL runs from reservation, not from delivery.
	if i.expiry != nil {
		i.expiry.Schedule(id, code, i.cfg.TTL-i.now().Sub(reservedAt))
	}

	if sendErr != nil {
		err := domain.ErrTransport.Wrap(sendErr)
		i.log.Error("otp delivery failed", "phone", id.Standardized, "attempt", attempt, "type", err.Type, "err", err)
		return domain.ErrDeliveryFailed.Wrap(err)
	}
	i.log.Info("otp issued", "phone", id.Standardized, "attempt", attempt)
	return nil
}

// generateCode returns a uniformly random six digit code. Leading zeros are
// kept, so codes must be compared as strings.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
