package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-whatsapp-otp/internal/application/auth"
	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/validate"
	"github.com/go-whatsapp-otp/internal/transport/http/middleware"
)

// AuthHandler serves the phone login endpoints.
type AuthHandler struct {
	svc auth.Service
	log *slog.Logger
}

func NewAuthHandler(svc auth.Service, log *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, log: log}
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.PhoneRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Register(r.Context(), req); err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent successfully via WhatsApp"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.PhoneRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := h.svc.Login(r.Context(), req, auth.RequestMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IPAddress: middleware.ClientIP(r),
	})
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginEnvelope{
		Message:    `Login requested. Send "hello, give me access" on WhatsApp to receive your OTP`,
		UserStatus: status,
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.svc.VerifyOTP(r.Context(), req)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyEnvelope{
		Message: "OTP verified successfully",
		Token:   sess.Token,
		User:    toUserView(sess.User),
	})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	u, err := h.svc.Me(r.Context(), claims.PhoneNumber)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{User: u, Permissions: domain.PermissionsFor(u.Status)})
}
