package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/infrastructure/messaging"
)

var (
	errDisconnected   = errors.New("whatsapp: disconnected")
	errStreamReplaced = errors.New("whatsapp: stream replaced by another client")
)

type conn struct {
	client    *whatsmeow.Client
	log       *slog.Logger
	handlerID uint32

	events    chan messaging.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(client *whatsmeow.Client, log *slog.Logger) *conn {
	return &conn{
		client: client,
		log:    log,
		events: make(chan messaging.Event, 32),
		done:   make(chan struct{}),
	}
}

func (c *conn) Events() <-chan messaging.Event { return c.events }

// handle runs on whatsmeow's event goroutine. It blocks until the Manager
// takes the event so credential updates are never dropped.
func (c *conn) handle(evt interface{}) {
	if _, ok := evt.(*events.Connected); ok {
		if err := c.client.SendPresence(types.PresenceAvailable); err != nil {
			c.log.Debug("whatsapp presence available failed", "err", err)
		}
	}
	ev, ok := translate(evt)
	if !ok {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// translate maps whatsmeow events to messaging events. Events the Manager
// does not care about report false.
func translate(evt interface{}) (messaging.Event, bool) {
	switch e := evt.(type) {
	case *events.Connected:
		return messaging.Opened{}, true
	case *events.PairSuccess:
		blob, err := encodeSession(e.ID)
		if err != nil {
			return nil, false
		}
		return messaging.CredentialsUpdated{Session: blob}, true
	case *events.LoggedOut:
		return messaging.Closed{Cause: fmt.Errorf("whatsapp: logged out (%v)", e.Reason), LoggedOut: true}, true
	case *events.StreamReplaced:
		return messaging.Closed{Cause: errStreamReplaced}, true
	case *events.Disconnected:
		return messaging.Closed{Cause: errDisconnected}, true
	case *events.ConnectFailure:
		return messaging.Closed{Cause: fmt.Errorf("whatsapp: connect failure (%v): %s", e.Reason, e.Message)}, true
	case *events.TemporaryBan:
		return messaging.Closed{Cause: fmt.Errorf("whatsapp: temporary ban (%v), expires in %v", e.Code, e.Expire)}, true
	case *events.Message:
		if e.Info.IsGroup {
			return nil, false
		}
		text := messageText(e.Message)
		if text == "" {
			return nil, false
		}
		return messaging.Inbound{Message: domain.InboundMessage{
			ID:        e.Info.ID,
			From:      e.Info.Chat.String(),
			Text:      text,
			FromMe:    e.Info.IsFromMe,
			Timestamp: e.Info.Timestamp,
		}}, true
	}
	return nil, false
}

func messageText(m *waProto.Message) string {
	if m == nil {
		return ""
	}
	if t := m.GetConversation(); t != "" {
		return t
	}
	return m.GetExtendedTextMessage().GetText()
}

func (c *conn) SendText(ctx context.Context, to, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", to, err)
	}
	_, err = c.client.SendMessage(ctx, jid, &waProto.Message{Conversation: proto.String(text)})
	return err
}

func (c *conn) SendPresence(_ context.Context, to string, p messaging.Presence) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient %q: %w", to, err)
	}
	state := types.ChatPresencePaused
	if p == messaging.PresenceComposing {
		state = types.ChatPresenceComposing
	}
	return c.client.SendChatPresence(jid, state, types.ChatPresenceMediaText)
}

func (c *conn) MarkRead(_ context.Context, msg domain.InboundMessage) error {
	chat, err := types.ParseJID(msg.From)
	if err != nil {
		return fmt.Errorf("parse chat %q: %w", msg.From, err)
	}
	return c.client.MarkRead([]types.MessageID{msg.ID}, msg.Timestamp, chat, chat)
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.client.RemoveEventHandler(c.handlerID)
		c.client.Disconnect()
	})
	return nil
}
