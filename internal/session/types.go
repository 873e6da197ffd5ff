package session

import (
	"errors"
	"time"
)

// Sentinel errors for session validation failures. These are results the
// caller branches on, not faults; each one is terminal for the token it
// concerns. Storage errors are returned separately and wrap the underlying
// cause.
var (
	// ErrInvalidSession indicates the token is unknown or the session is
	// no longer active.
	ErrInvalidSession = errors.New("invalid session")

	// ErrExpiredSession indicates the session passed its expiry instant.
	ErrExpiredSession = errors.New("session expired")

	// ErrHijackSuspected indicates the request's client signature no longer
	// matches the one the session was issued to.
	ErrHijackSuspected = errors.New("session hijack suspected")

	// ErrUserInactive indicates the owning user account is not active.
	ErrUserInactive = errors.New("user account inactive")
)

// Logout reasons recorded when a session is deactivated.
const (
	ReasonLogout         = "logout"
	ReasonLogoutAll      = "logout_all"
	ReasonExpired        = "expired"
	ReasonHijackDetected = "hijack_detected"
	ReasonUserInactive   = "user_inactive"
	ReasonAdminRevoked   = "admin_revoked"
)

// Fingerprint is the client context captured at session creation and
// re-checked on every validation. Absent values are stored as "unknown".
type Fingerprint struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// Normalize replaces empty fields with "unknown".
func (f Fingerprint) Normalize() Fingerprint {
	if f.IPAddress == "" {
		f.IPAddress = "unknown"
	}
	if f.UserAgent == "" {
		f.UserAgent = "unknown"
	}
	return f
}

// Session is one authenticated browser or client instance. Exactly one row
// exists per issued token, and deactivation is a one-way transition.
type Session struct {
	Token          string      `json:"token"`
	UserID         string      `json:"user_id"`
	Fingerprint    Fingerprint `json:"fingerprint"`
	CreatedAt      time.Time   `json:"created_at"`
	LastActivityAt time.Time   `json:"last_activity_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
	Active         bool        `json:"active"`
	LogoutReason   string      `json:"logout_reason,omitempty"`
}

// Identity is the resolved actor a successful validation returns. The
// display fields are denormalized from the user record at validation time.
type Identity struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
}

// Summary is a read-only projection of a session for self-service review.
// The token is the session's only identifier so it is included, but nothing
// else secret is.
type Summary struct {
	Token          string    `json:"token"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}
