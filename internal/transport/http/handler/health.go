package handler

import (
	"net/http"
	"time"

	"github.com/go-whatsapp-otp/internal/infrastructure/messaging"
)

// ChannelState reports the messaging connection state.
type ChannelState interface {
	State() messaging.State
}

// HealthEnvelope is the /health response.
type HealthEnvelope struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Uptime    float64         `json:"uptime"`
	WhatsApp  messaging.State `json:"whatsapp"`
}

// HealthHandler handles the health-check endpoint.
type HealthHandler struct {
	channel ChannelState
	started time.Time
	now     func() time.Time
}

func NewHealthHandler(channel ChannelState) *HealthHandler {
	return &HealthHandler{channel: channel, started: time.Now(), now: time.Now}
}

// Check always answers 200: a closed messaging channel degrades OTP
// delivery but the API itself is up.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, HealthEnvelope{
		Status:    "ok",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.started).Seconds(),
		WhatsApp:  h.channel.State(),
	})
}
