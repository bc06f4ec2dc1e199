package domain

import "time"

// InboundMessage is a text message received over the messaging channel.
// From is the sender's transport address (for example
// 919876543210@s.whatsapp.net).
type InboundMessage struct {
	ID        string
	From      string
	Text      string
	FromMe    bool
	Timestamp time.Time
}
