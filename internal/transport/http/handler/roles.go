package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-whatsapp-otp/internal/application/role"
	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/transport/http/middleware"
)

// RoleHandler serves role administration.
type RoleHandler struct {
	svc role.Service
	log *slog.Logger
}

func NewRoleHandler(svc role.Service, log *slog.Logger) *RoleHandler {
	return &RoleHandler{svc: svc, log: log}
}

func actorFrom(r *http.Request) (role.Actor, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return role.Actor{}, false
	}
	return role.Actor{PhoneNumber: claims.PhoneNumber, Role: claims.Role}, true
}

func (h *RoleHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var input domain.RoleInput
	if !decode(w, r, &input) {
		return
	}
	u, err := h.svc.AssignRole(r.Context(), actor, input)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *RoleHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.svc.Approve)
}

func (h *RoleHandler) Ban(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.svc.Ban)
}

func (h *RoleHandler) statusChange(w http.ResponseWriter, r *http.Request, fn func(context.Context, role.Actor, string) (*domain.User, error)) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	u, err := fn(r.Context(), actor, chi.URLParam(r, "phoneNumber"))
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
