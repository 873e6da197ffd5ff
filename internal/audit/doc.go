// Package audit records the security trail: immutable events describing
// session activity, access decisions, and user management actions, plus
// login attempts with burst detection.
//
// Recording is deliberately non-fatal. A storage failure must never turn a
// successful business operation into a failed one, so Trail.Record reports
// the loss as a boolean and on the operational log instead of returning an
// error to the caller.
package audit
