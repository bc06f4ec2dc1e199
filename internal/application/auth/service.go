package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
)

// UserStore is the persistence the login flow needs.
type UserStore interface {
	Get(ctx context.Context, phoneNumber string) (*domain.User, error)
	RecordLoginAttempt(ctx context.Context, a domain.LoginAttempt) (*domain.User, error)
	RecordLogin(ctx context.Context, phoneNumber string) (*domain.User, error)
}

// LoginMarker records that a login was started over HTTP.
type LoginMarker interface {
	Request(ctx context.Context, id phone.Identity) error
}

// OTPIssuer delivers a fresh code.
type OTPIssuer interface {
	Issue(ctx context.Context, id phone.Identity) error
}

// OTPVerifier consumes a submitted code.
type OTPVerifier interface {
	Verify(ctx context.Context, id phone.Identity, code string) error
}

// TokenSigner issues session credentials.
type TokenSigner interface {
	Sign(user *domain.User) (string, error)
}

// ServiceDeps bundles the collaborators of the auth service.
type ServiceDeps struct {
	Users    UserStore
	Markers  LoginMarker
	Issuer   OTPIssuer
	Verifier OTPVerifier
	Tokens   TokenSigner
	Log      *slog.Logger
	Now      func() time.Time
}

// RequestMeta is what the transport knows about the caller.
type RequestMeta struct {
	DeviceID  string
	IPAddress string
}

// Session is the result of a successful verification.
type Session struct {
	Token       string
	User        *domain.User
	Permissions domain.Permissions
}

type Service interface {
	// Register starts a login and sends the code right away.
	Register(ctx context.Context, req domain.PhoneRequest) error
	// Login records the attempt and starts a login; the user then sends
	// the trigger phrase to receive the code.
	Login(ctx context.Context, req domain.PhoneRequest, meta RequestMeta) (domain.Status, error)
	VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*Session, error)
	Me(ctx context.Context, phoneNumber string) (*domain.User, error)
}

type service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &service{deps: deps}
}

func normalize(raw string) (phone.Identity, error) {
	id, err := phone.Normalize(raw)
	if err != nil {
		return phone.Identity{}, domain.ErrInvalidPhoneNumber.Wrap(err)
	}
	return id, nil
}

func (s *service) Register(ctx context.Context, req domain.PhoneRequest) error {
	id, err := normalize(req.PhoneNumber)
	if err != nil {
		return err
	}
	if err := s.deps.Markers.Request(ctx, id); err != nil {
		return err
	}
	return s.deps.Issuer.Issue(ctx, id)
}

func (s *service) Login(ctx context.Context, req domain.PhoneRequest, meta RequestMeta) (domain.Status, error) {
	id, err := normalize(req.PhoneNumber)
	if err != nil {
		return "", err
	}
	user, err := s.deps.Users.RecordLoginAttempt(ctx, domain.LoginAttempt{
		PhoneNumber: id.Standardized,
		DeviceID:    meta.DeviceID,
		IPAddress:   meta.IPAddress,
		At:          s.deps.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("record login attempt: %w", err)
	}
	if user.Status == domain.StatusBanned {
		return "", domain.ErrAccountBanned
	}
	if err := s.deps.Markers.Request(ctx, id); err != nil {
		return "", err
	}
	s.deps.Log.Info("login requested", "phone", id.Standardized, "status", user.Status)
	return user.Status, nil
}

func (s *service) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*Session, error) {
	id, err := normalize(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Verifier.Verify(ctx, id, req.OTP); err != nil {
		return nil, err
	}

	user, err := s.deps.Users.RecordLogin(ctx, id.Standardized)
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	if user.Status == domain.StatusBanned {
		return nil, domain.ErrAccountBanned
	}

	token, err := s.deps.Tokens.Sign(user)
	if err != nil {
		return nil, err
	}
	s.deps.Log.Info("otp verified", "phone", id.Standardized, "role", user.Role)
	return &Session{Token: token, User: user, Permissions: domain.PermissionsFor(user.Status)}, nil
}

func (s *service) Me(ctx context.Context, phoneNumber string) (*domain.User, error) {
	return s.deps.Users.Get(ctx, phoneNumber)
}
