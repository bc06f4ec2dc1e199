package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-whatsapp-otp/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message"`
}

// ErrorEnvelope carries a stable error type and a client-safe message.
type ErrorEnvelope struct {
	Type    domain.ErrorType `json:"type,omitempty"`
	Message string           `json:"message"`
}

// LoginEnvelope is the /login response.
type LoginEnvelope struct {
	Message    string        `json:"message"`
	UserStatus domain.Status `json:"userStatus"`
}

// UserView is the user as returned to clients after verification.
type UserView struct {
	PhoneNumber string             `json:"phoneNumber"`
	Role        domain.Role        `json:"role"`
	Status      domain.Status      `json:"status"`
	Permissions domain.Permissions `json:"permissions"`
}

// VerifyEnvelope is the /verify-otp response.
type VerifyEnvelope struct {
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    UserView `json:"user"`
}

// ProfileEnvelope is the /me response.
type ProfileEnvelope struct {
	User        *domain.User       `json:"user"`
	Permissions domain.Permissions `json:"permissions"`
}

func toUserView(u *domain.User) UserView {
	return UserView{
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		Status:      u.Status,
		Permissions: domain.PermissionsFor(u.Status),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorEnvelope{Message: msg})
}

// writeAppError maps service errors to responses. Unknown errors are logged
// and reported as a generic 500.
func writeAppError(w http.ResponseWriter, log *slog.Logger, err error) {
	var ae *domain.AppError
	switch {
	case errors.As(err, &ae):
		if ae.Status >= http.StatusInternalServerError {
			log.Error("request failed", "type", ae.Type, "err", err)
		}
		writeJSON(w, ae.Status, ErrorEnvelope{Type: ae.Type, Message: ae.Message})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "Invalid request")
	default:
		log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorEnvelope{Type: domain.ErrorInternal, Message: "Internal server error"})
	}
}
