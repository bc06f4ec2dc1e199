// Package messaging owns the long-lived connection to the messaging
// transport. The transport itself is reached through Dialer and Conn, so
// the reconnect discipline here does not depend on any one client library.
package messaging

import (
	"context"
	"errors"

	"github.com/go-whatsapp-otp/internal/domain"
)

var (
	// ErrNotConnected is returned by sends while the channel is not open.
	ErrNotConnected = errors.New("messaging channel not connected")
	// ErrLoggedOut is returned by Run when the transport ended the session.
	ErrLoggedOut = errors.New("messaging session logged out")
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosed       State = "closed"
	StateLoggedOut    State = "logged_out"
)

// Event is emitted by a Conn.
type Event interface{ event() }

// Opened reports that the connection is authenticated and usable.
type Opened struct{}

// Closed reports that the connection dropped. LoggedOut is terminal.
type Closed struct {
	Cause     error
	LoggedOut bool
}

// CredentialsUpdated carries rotated session material that must be
// persisted before anything else happens.
type CredentialsUpdated struct {
	Session []byte
}

// Inbound carries a received message.
type Inbound struct {
	Message domain.InboundMessage
}

func (Opened) event()             {}
func (Closed) event()             {}
func (CredentialsUpdated) event() {}
func (Inbound) event()            {}

// Presence is a chat presence shown to the recipient.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

// Conn is one transport connection. Events is closed when the connection
// ends for good.
type Conn interface {
	Events() <-chan Event
	SendText(ctx context.Context, to, text string) error
	SendPresence(ctx context.Context, to string, p Presence) error
	MarkRead(ctx context.Context, msg domain.InboundMessage) error
	Close() error
}

// Dialer opens a Conn from the persisted session blob. session is nil when
// nothing has been stored yet.
type Dialer interface {
	Dial(ctx context.Context, session []byte) (Conn, error)
}

// SessionStore persists the opaque session blob. Load returns nil, nil when
// no session exists.
type SessionStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, session []byte) error
}

// InboundHandler consumes inbound messages one at a time.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg domain.InboundMessage) error
}

// InboundHandlerFunc adapts a function to InboundHandler.
type InboundHandlerFunc func(ctx context.Context, msg domain.InboundMessage) error

func (f InboundHandlerFunc) HandleInbound(ctx context.Context, msg domain.InboundMessage) error {
	return f(ctx, msg)
}
