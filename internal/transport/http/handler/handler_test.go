package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/infrastructure/messaging"
	"github.com/go-whatsapp-otp/internal/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateFunc func() messaging.State

func (f stateFunc) State() messaging.State { return f() }

func TestHealthCheck(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthHandler(stateFunc(func() messaging.State { return messaging.StateConnecting }))
	h.started = start
	h.now = func() time.Time { return start.Add(90 * time.Second) }

	rr := httptest.NewRecorder()
	h.Check(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got HealthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 90.0, got.Uptime)
	assert.Equal(t, messaging.StateConnecting, got.WhatsApp)
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantType domain.ErrorType
		wantMsg  string
	}{
		{"app error", domain.ErrOTPMismatch, http.StatusBadRequest, domain.ErrorOTPMismatch, "Incorrect OTP"},
		{"wrapped app error", fmt.Errorf("verify: %w", domain.ErrDeliveryFailed.Wrap(errors.New("socket closed"))), http.StatusServiceUnavailable, domain.ErrorOTPDelivery, "Failed to send OTP via WhatsApp"},
		{"transport failure stays internal", domain.ErrDeliveryFailed.Wrap(domain.ErrTransport.Wrap(errors.New("socket closed"))), http.StatusServiceUnavailable, domain.ErrorOTPDelivery, "Failed to send OTP via WhatsApp"},
		{"not found", fmt.Errorf("user: %w", domain.ErrNotFound), http.StatusNotFound, "", "User not found"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "", "Forbidden"},
		{"bad request", domain.ErrBadRequest, http.StatusBadRequest, "", "Invalid request"},
		{"unknown", errors.New("dynamo timeout"), http.StatusInternalServerError, domain.ErrorInternal, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeAppError(rr, logging.Discard(), tt.err)

			assert.Equal(t, tt.wantCode, rr.Code)
			var got ErrorEnvelope
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantMsg, got.Message)
			assert.NotContains(t, rr.Body.String(), "socket closed")
		})
	}
}

func TestDecode_Validation(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/verify-otp",
		strings.NewReader(`{"phoneNumber":"9876543210","otp":"12ab"}`))
	var body domain.VerifyOTPRequest
	assert.False(t, decode(rr, req, &body))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "otp")
}
