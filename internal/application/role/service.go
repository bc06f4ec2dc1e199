package role

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
)

// UserStore is the persistence role administration needs.
type UserStore interface {
	Get(ctx context.Context, phoneNumber string) (*domain.User, error)
	UpdateRole(ctx context.Context, phoneNumber string, role domain.Role) (*domain.User, error)
	UpdateStatus(ctx context.Context, phoneNumber string, status domain.Status) (*domain.User, error)
}

// Actor is the authenticated caller.
type Actor struct {
	PhoneNumber string
	Role        domain.Role
}

type Service interface {
	AssignRole(ctx context.Context, actor Actor, input domain.RoleInput) (*domain.User, error)
	Approve(ctx context.Context, actor Actor, phoneNumber string) (*domain.User, error)
	Ban(ctx context.Context, actor Actor, phoneNumber string) (*domain.User, error)
}

type service struct {
	users UserStore
	log   *slog.Logger
}

func NewService(users UserStore, log *slog.Logger) Service {
	return &service{users: users, log: log}
}

// CheckHierarchy reports whether acting may manage target: only strictly
// higher ranks may.
func CheckHierarchy(acting, target domain.Role) bool {
	return acting.Outranks(target)
}

func (s *service) AssignRole(ctx context.Context, actor Actor, input domain.RoleInput) (*domain.User, error) {
	if !input.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", input.Role, domain.ErrBadRequest)
	}
	target, err := s.target(ctx, actor, input.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if !CheckHierarchy(actor.Role, input.Role) {
		return nil, fmt.Errorf("%s cannot grant %s: %w", actor.Role, input.Role, domain.ErrForbidden)
	}
	user, err := s.users.UpdateRole(ctx, target.PhoneNumber, input.Role)
	if err != nil {
		return nil, err
	}
	s.log.Info("role assigned", "by", actor.PhoneNumber, "phone", user.PhoneNumber, "role", user.Role)
	return user, nil
}

func (s *service) Approve(ctx context.Context, actor Actor, phoneNumber string) (*domain.User, error) {
	return s.setStatus(ctx, actor, phoneNumber, domain.StatusApproved)
}

func (s *service) Ban(ctx context.Context, actor Actor, phoneNumber string) (*domain.User, error) {
	return s.setStatus(ctx, actor, phoneNumber, domain.StatusBanned)
}

func (s *service) setStatus(ctx context.Context, actor Actor, phoneNumber string, status domain.Status) (*domain.User, error) {
	target, err := s.target(ctx, actor, phoneNumber)
	if err != nil {
		return nil, err
	}
	user, err := s.users.UpdateStatus(ctx, target.PhoneNumber, status)
	if err != nil {
		return nil, err
	}
	s.log.Info("user status changed", "by", actor.PhoneNumber, "phone", user.PhoneNumber, "status", status)
	return user, nil
}

// target loads the user being managed and checks the actor outranks its
// current role.
func (s *service) target(ctx context.Context, actor Actor, rawPhone string) (*domain.User, error) {
	id, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, domain.ErrInvalidPhoneNumber.Wrap(err)
	}
	user, err := s.users.Get(ctx, id.Standardized)
	if err != nil {
		return nil, err
	}
	if !CheckHierarchy(actor.Role, user.Role) {
		return nil, fmt.Errorf("%s cannot manage %s: %w", actor.Role, user.Role, domain.ErrForbidden)
	}
	return user, nil
}
