// Package session manages authenticated sessions: opaque token issuance,
// validation with hijack detection, invalidation, and background expiry.
//
// Tokens are 256-bit random values, stored server-side so revocation takes
// effect immediately. A session moves from active to inactive exactly once
// and never back; the reason for the transition is recorded on the row.
package session
