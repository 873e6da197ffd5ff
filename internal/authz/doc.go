// Package authz implements role and ownership based access decisions.
//
// The policy is a small fixed table keyed by role, not a rule engine.
// Decisions carry a reason and a risk level so the audit trail can
// reconstruct why access was granted or refused.
package authz
