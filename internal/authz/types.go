package authz

import "github.com/marlowe-systems/aegis-core/internal/audit"

// Actions the engine understands. Anything else is denied.
const (
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Resource types the engine understands.
const (
	ResourceUser     = "user"
	ResourceSession  = "session"
	ResourceAuditLog = "audit_log"
)

// Actor is the resolved identity requesting an action. It usually comes
// from a validated session.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Resource is the target of an action. OwnerID is supplied by the caller
// when ownership is meaningful for the resource type: the user a session
// belongs to, or the resource ID itself for user records.
type Resource struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	OwnerID string `json:"owner_id,omitempty"`
}

// Decision is the outcome of one authorization call. It is never persisted
// directly; the caller materializes it into an audit event.
type Decision struct {
	ActorID      string          `json:"actor_id"`
	ActorRole    string          `json:"actor_role"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Action       string          `json:"action"`
	Granted      bool            `json:"granted"`
	Reason       string          `json:"reason"`
	RiskLevel    audit.RiskLevel `json:"risk_level"`
}

// Event converts the decision into an audit event for the trail.
func (d Decision) Event() audit.Event {
	eventType := "access_denied"
	if d.Granted {
		eventType = "access_granted"
	}
	return audit.Event{
		ActorID:      d.ActorID,
		ActorRole:    d.ActorRole,
		Category:     audit.CategoryAccess,
		Type:         eventType,
		Details:      d.Reason,
		ResourceType: d.ResourceType,
		ResourceID:   d.ResourceID,
		Success:      d.Granted,
		RiskLevel:    d.RiskLevel,
	}
}
