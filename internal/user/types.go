package user

import (
	"context"
	"errors"
	"time"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleAdmin has full control: can read, modify, and delete other users,
	// and is the only role allowed to read the audit trail.
	RoleAdmin Role = "admin"

	// RoleManager can read other users' records but not modify or delete them.
	RoleManager Role = "manager"

	// RoleEmployee can only access their own records.
	RoleEmployee Role = "employee"
)

// ValidRoles is the set of valid account roles.
var ValidRoles = []Role{RoleAdmin, RoleManager, RoleEmployee}

// IsValidRole returns true if the role is a valid account role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Status represents the lifecycle state of a user account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User represents an account that can authenticate and hold sessions.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	Department   string    `json:"department,omitempty"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActive returns true if the account may hold valid sessions.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Lookup is the user-resolution collaborator consumed by the session store
// and the authorization engine. It is deliberately narrow: the core needs
// identity, role, and status, nothing else.
type Lookup interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// Sentinel errors for user operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already registered")
)
