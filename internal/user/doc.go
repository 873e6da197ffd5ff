// Package user provides the account store backing the access-control core.
//
// The core itself treats user lifecycle as an external concern: the session
// store and authorization engine consume only the narrow Lookup interface
// (id, role, status). This package supplies that collaborator, plus the
// persistence, Argon2id password hashing, and first-boot admin seeding that
// the HTTP layer's login flow needs.
//
// Roles form a three-tier model (admin > manager > employee); the actual
// permission semantics live in the authz package.
package user
