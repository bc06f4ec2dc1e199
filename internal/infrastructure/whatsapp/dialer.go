// Package whatsapp adapts go.mau.fi/whatsmeow to the messaging.Dialer and
// messaging.Conn contracts.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"github.com/go-whatsapp-otp/internal/infrastructure/messaging"
)

// session is the blob persisted through messaging.SessionStore. Device keys
// stay in the SQL store; the blob only says which device to load.
type session struct {
	JID string `json:"jid"`
}

func encodeSession(jid types.JID) ([]byte, error) {
	return json.Marshal(session{JID: jid.String()})
}

func decodeSession(b []byte) (types.JID, bool, error) {
	if len(b) == 0 {
		return types.JID{}, false, nil
	}
	var s session
	if err := json.Unmarshal(b, &s); err != nil {
		return types.JID{}, false, fmt.Errorf("decode session: %w", err)
	}
	if s.JID == "" {
		return types.JID{}, false, nil
	}
	jid, err := types.ParseJID(s.JID)
	if err != nil {
		return types.JID{}, false, fmt.Errorf("parse session jid: %w", err)
	}
	return jid, true, nil
}

// OpenStore connects whatsmeow's device store to PostgreSQL and runs its
// schema upgrades.
func OpenStore(dsn string, log *slog.Logger) (*sqlstore.Container, error) {
	c, err := sqlstore.New("postgres", dsn, newLogger(log.With("component", "whatsmeow-store")))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp device store: %w", err)
	}
	return c, nil
}

// Dialer creates one whatsmeow client per Dial.
type Dialer struct {
	devices *sqlstore.Container
	log     *slog.Logger
}

func NewDialer(devices *sqlstore.Container, log *slog.Logger) *Dialer {
	return &Dialer{devices: devices, log: log}
}

// Dial loads the paired device named by the session blob, or a fresh one
// when there is none, and connects. Unpaired devices log pairing QR codes
// until a phone scans one.
func (d *Dialer) Dial(ctx context.Context, blob []byte) (messaging.Conn, error) {
	device, err := d.device(blob)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, newLogger(d.log.With("component", "whatsmeow")))
	client.EnableAutoReconnect = false

	c := newConn(client, d.log)
	c.handlerID = client.AddEventHandler(c.handle)

	if client.Store.ID == nil {
		qr, err := client.GetQRChannel(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("whatsapp qr channel: %w", err)
		}
		go d.logQR(qr)
	}

	if err := client.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("whatsapp connect: %w", err)
	}
	return c, nil
}

func (d *Dialer) device(blob []byte) (*store.Device, error) {
	jid, ok, err := decodeSession(blob)
	if err != nil {
		return nil, err
	}
	if ok {
		device, err := d.devices.GetDevice(jid)
		if err != nil {
			return nil, fmt.Errorf("load whatsapp device %s: %w", jid, err)
		}
		if device != nil {
			return device, nil
		}
		d.log.Warn("stored whatsapp device missing, pairing again", "jid", jid.String())
	}
	return d.devices.NewDevice(), nil
}

func (d *Dialer) logQR(items <-chan whatsmeow.QRChannelItem) {
	for item := range items {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			d.log.Info("scan this QR code with WhatsApp to pair", "code", item.Code)
		case whatsmeow.QRChannelEventError:
			d.log.Error("whatsapp pairing failed", "err", item.Error)
		default:
			d.log.Info("whatsapp pairing", "event", item.Event)
		}
	}
}
