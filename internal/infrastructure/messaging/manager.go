package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
)

// Options tune the Manager. Zero Server and backoff values take the
// defaults below; a zero TypingDelay sends without a typing pause.
type Options struct {
	// Server is the address domain appended to outbound recipients.
	Server      string
	TypingDelay time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

const (
	DefaultServer      = "s.whatsapp.net"
	defaultBackoffBase = time.Second
	defaultBackoffMax  = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Server == "" {
		o.Server = DefaultServer
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = defaultBackoffMax
	}
	return o
}

// Manager keeps one connection open, reconnecting on every drop except an
// explicit logout. All events of a connection are consumed by the goroutine
// running Run, in the order the transport produced them.
type Manager struct {
	dialer Dialer
	store  SessionStore
	log    *slog.Logger
	opts   Options

	mu    sync.RWMutex
	state State
	conn  Conn

	reconnect chan struct{}
}

func NewManager(dialer Dialer, store SessionStore, log *slog.Logger, opts Options) *Manager {
	return &Manager{
		dialer:    dialer,
		store:     store,
		log:       log,
		opts:      opts.withDefaults(),
		state:     StateDisconnected,
		reconnect: make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOpen reports whether sends can currently succeed.
func (m *Manager) IsOpen() bool { return m.State() == StateOpen }

// Reconnect asks Run to drop the current connection and dial again.
// Requests made while one is already pending are merged into it.
func (m *Manager) Reconnect() {
	select {
	case m.reconnect <- struct{}{}:
	default:
	}
}

// Run dials and consumes connections until ctx is done or the session is
// logged out, in which case it returns ErrLoggedOut.
func (m *Manager) Run(ctx context.Context, handler InboundHandler) error {
	backoff := m.opts.BackoffBase
	for {
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return nil
		}

		m.setState(StateConnecting)
		conn, err := m.dial(ctx)
		if err != nil {
			m.setState(StateDisconnected)
			m.log.Warn("messaging dial failed", "err", err, "retry_in", backoff)
			if !m.wait(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, m.opts.BackoffMax)
			continue
		}
		// A reconnect requested while dialing is served by this connection.
		select {
		case <-m.reconnect:
		default:
		}

		opened, loggedOut := m.consume(ctx, conn, handler)
		m.detach()
		if err := conn.Close(); err != nil {
			m.log.Debug("messaging close", "err", err)
		}

		if loggedOut {
			m.setState(StateLoggedOut)
			m.log.Error("messaging session logged out; pairing required")
			return ErrLoggedOut
		}
		m.setState(StateClosed)
		if opened {
			backoff = m.opts.BackoffBase
			continue
		}

		// Closed before it ever opened (connect failure, temporary ban).
		if ctx.Err() != nil {
			continue
		}
		m.log.Warn("messaging connection failed before opening", "retry_in", backoff)
		if !m.wait(ctx, backoff) {
			return nil
		}
		backoff = min(backoff*2, m.opts.BackoffMax)
	}
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	session, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return m.dialer.Dial(ctx, session)
}

// wait sleeps for d, returning early on a reconnect request. It returns
// false when ctx is done.
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-m.reconnect:
		return true
	case <-t.C:
		return true
	}
}

// consume handles events until the connection ends. It reports whether the
// connection opened and whether the end was a logout.
func (m *Manager) consume(ctx context.Context, conn Conn, handler InboundHandler) (opened, loggedOut bool) {
	events := conn.Events()
	for {
		select {
		case <-ctx.Done():
			return opened, false
		case <-m.reconnect:
			m.log.Info("messaging reconnect requested")
			return opened, false
		case ev, ok := <-events:
			if !ok {
				m.log.Warn("messaging events ended")
				return opened, false
			}
			switch e := ev.(type) {
			case Opened:
				opened = true
				m.attach(conn)
				m.log.Info("messaging connection open")
			case Closed:
				if e.LoggedOut {
					return opened, true
				}
				m.log.Warn("messaging connection closed", "cause", e.Cause)
				return opened, false
			case CredentialsUpdated:
				if err := m.store.Save(ctx, e.Session); err != nil {
					m.log.Error("persist messaging session", "err", err)
				}
			case Inbound:
				if e.Message.FromMe {
					continue
				}
				m.dispatch(ctx, handler, e.Message)
			}
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, handler InboundHandler, msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("inbound handler panic", "from", msg.From, "panic", r)
		}
	}()
	if err := handler.HandleInbound(ctx, msg); err != nil {
		m.log.Error("inbound handler failed", "from", msg.From, "err", err)
	}
}

// Send delivers text to the identity's messaging address.
func (m *Manager) Send(ctx context.Context, to phone.Identity, text string) error {
	conn, err := m.openConn()
	if err != nil {
		return err
	}
	return m.sendTo(ctx, conn, to.AddressUser()+"@"+m.opts.Server, text)
}

// Reply answers msg in its chat and marks it read.
func (m *Manager) Reply(ctx context.Context, msg domain.InboundMessage, text string) error {
	conn, err := m.openConn()
	if err != nil {
		return err
	}
	if err := m.sendTo(ctx, conn, msg.From, text); err != nil {
		return err
	}
	if err := conn.MarkRead(ctx, msg); err != nil {
		m.log.Debug("mark read failed", "id", msg.ID, "err", err)
	}
	return nil
}

// sendTo shows a typing indicator for the configured delay, sends the text
// and clears the indicator. Presence failures are only logged.
func (m *Manager) sendTo(ctx context.Context, conn Conn, addr, text string) error {
	if err := conn.SendPresence(ctx, addr, PresenceComposing); err != nil {
		m.log.Debug("presence update failed", "to", addr, "err", err)
	}
	if m.opts.TypingDelay > 0 {
		t := time.NewTimer(m.opts.TypingDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := conn.SendText(ctx, addr, text); err != nil {
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	if err := conn.SendPresence(ctx, addr, PresencePaused); err != nil {
		m.log.Debug("presence update failed", "to", addr, "err", err)
	}
	return nil
}

func (m *Manager) openConn() (Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateOpen || m.conn == nil {
		return nil, ErrNotConnected
	}
	return m.conn, nil
}

func (m *Manager) attach(conn Conn) {
	m.mu.Lock()
	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()
}

func (m *Manager) detach() {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
