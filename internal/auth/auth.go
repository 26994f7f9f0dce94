// Package auth derives the identity stamped on writes from a sign-in email.
// It does not authenticate; callers decide what the role permits.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEmail is returned for an address without a local part and domain.
var ErrInvalidEmail = errors.New("invalid email address")

// Role is a workspace role.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleStakeholder Role = "stakeholder"
)

// Identity is the signed-in participant.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Directory maps emails to identities. One configured address is the admin.
type Directory struct {
	adminEmail string
	adminName  string
}

// NewDirectory creates a directory. adminName is shown for the admin and
// defaults to "Admin".
func NewDirectory(adminEmail, adminName string) *Directory {
	if strings.TrimSpace(adminName) == "" {
		adminName = "Admin"
	}
	return &Directory{
		adminEmail: strings.ToLower(strings.TrimSpace(adminEmail)),
		adminName:  adminName,
	}
}

// Identify returns the identity for email. The admin is named
// "<adminName> (Admin)"; everyone else by the local part of their address.
func (d *Directory) Identify(email string) (Identity, error) {
	email = strings.TrimSpace(email)
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if d.adminEmail != "" && strings.ToLower(email) == d.adminEmail {
		return Identity{Email: email, Name: d.adminName + " (Admin)", Role: RoleAdmin}, nil
	}
	return Identity{Email: email, Name: local, Role: RoleStakeholder}, nil
}
