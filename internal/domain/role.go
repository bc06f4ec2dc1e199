package domain

import (
	"fmt"
	"strings"
)

// Role is a closed set of account roles. Unknown strings are rejected by
// ParseRole so nothing downstream ever looks up an unrecognised role.
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleUser       Role = "user"
	RoleSupplier   Role = "supplier"
	RoleShop       Role = "shop"
)

// Rank orders roles by privilege; lower is more privileged.
// Supplier and shop accounts carry no administrative privilege and share the
// user rank.
func (r Role) Rank() int {
	switch r {
	case RoleSuperAdmin:
		return 1
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 3
	case RoleUser, RoleSupplier, RoleShop:
		return 4
	}
	return 0
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.Rank() > 0 }

// Outranks reports whether r is strictly more privileged than other.
func (r Role) Outranks(other Role) bool {
	return r.Valid() && other.Valid() && r.Rank() < other.Rank()
}

// AtLeast reports whether r is as privileged as other or more.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && other.Valid() && r.Rank() <= other.Rank()
}

// ParseRole accepts role names case-insensitively ("SuperAdmin", "admin").
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q: %w", s, ErrBadRequest)
	}
	return r, nil
}

// UnmarshalText lets request bodies and token claims reject unknown roles
// while decoding.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleInput is the body of a role assignment request.
type RoleInput struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Role        Role   `json:"role" validate:"required"`
}
