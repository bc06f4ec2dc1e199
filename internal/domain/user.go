package domain

import (
	"fmt"
	"time"
)

// Status is the approval state of an account.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusBanned   Status = "banned"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusBanned:
		return true
	}
	return false
}

func (s *Status) UnmarshalText(b []byte) error {
	st := Status(b)
	if !st.Valid() {
		return fmt.Errorf("unknown status %q: %w", string(b), ErrBadRequest)
	}
	*s = st
	return nil
}

// User is the persistent account. PhoneNumber is the standardized identity
// key and the table's partition key.
type User struct {
	PhoneNumber      string     `json:"phoneNumber" dynamodbav:"phone_number"`
	UserID           string     `json:"id" dynamodbav:"user_id"`
	Role             Role       `json:"role" dynamodbav:"role"`
	Status           Status     `json:"status" dynamodbav:"status"`
	LastLogin        *time.Time `json:"lastLogin,omitempty" dynamodbav:"last_login,omitempty"`
	LastLoginAttempt *time.Time `json:"lastLoginAttempt,omitempty" dynamodbav:"last_login_attempt,omitempty"`
	DeviceID         string     `json:"deviceId,omitempty" dynamodbav:"device_id,omitempty"`
	IPAddress        string     `json:"ipAddress,omitempty" dynamodbav:"ip_address,omitempty"`
	CreatedAt        time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Permissions gates what the client UI shows for a user.
type Permissions struct {
	CanViewProducts bool `json:"canViewProducts"`
	CanViewPrices   bool `json:"canViewPrices"`
}

// PermissionsFor derives UI permissions from the account status: banned
// accounts see nothing, prices stay hidden until approval.
func PermissionsFor(s Status) Permissions {
	return Permissions{
		CanViewProducts: s != StatusBanned,
		CanViewPrices:   s == StatusApproved,
	}
}

// LoginAttempt is what the login endpoints record about the caller.
type LoginAttempt struct {
	PhoneNumber string
	DeviceID    string
	IPAddress   string
	At          time.Time
}

// PhoneRequest is the body of /register and /login.
type PhoneRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}

// VerifyOTPRequest is the body of /verify-otp.
type VerifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
}
