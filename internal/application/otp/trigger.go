package otp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
)

// TriggerPhrase is the inbound text that requests a code.
const TriggerPhrase = "hello, give me access"

// Replies sent by the trigger handler.
const (
	ReplyLoginFirst   = "Please initiate login from the app first, then send \"hello, give me access\" to receive your OTP."
	ReplyInstructions = "To log in, request a login from the app and then send \"hello, give me access\" here."
	ReplyAlreadySent  = "An OTP was already sent. Please wait for it to expire before requesting a new one."
	ReplyTooMany      = "Too many OTP requests. Please try again later."
)

// Replier answers an inbound message.
type Replier interface {
	Reply(ctx context.Context, msg domain.InboundMessage, text string) error
}

// TriggerHandler issues codes for inbound trigger messages from identities
// that started a login over HTTP.
type TriggerHandler struct {
	markers *Markers
	issuer  *Issuer
	replier Replier
	log     *slog.Logger
}

func NewTriggerHandler(markers *Markers, issuer *Issuer, replier Replier, log *slog.Logger) *TriggerHandler {
	return &TriggerHandler{markers: markers, issuer: issuer, replier: replier, log: log}
}

// HandleInbound processes one inbound message.
func (h *TriggerHandler) HandleInbound(ctx context.Context, msg domain.InboundMessage) error {
	if msg.FromMe {
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(msg.Text), TriggerPhrase) {
		return h.replier.Reply(ctx, msg, ReplyInstructions)
	}

	id, err := phone.FromAddress(msg.From)
	if err != nil {
		h.log.Info("trigger from unsupported sender", "from", msg.From)
		return h.replier.Reply(ctx, msg, ReplyInstructions)
	}

	marker, err := h.markers.Get(ctx, id)
	if err != nil {
		return err
	}
	if marker == nil {
		return h.replier.Reply(ctx, msg, ReplyLoginFirst)
	}

	err = h.issuer.Issue(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrOTPAlreadySent):
		return h.replier.Reply(ctx, msg, ReplyAlreadySent)
	case errors.Is(err, domain.ErrRateLimited):
		return h.replier.Reply(ctx, msg, ReplyTooMany)
	}
	// Delivery failures are not answered: the channel that failed would
	// carry the reply too.
	return err
}
