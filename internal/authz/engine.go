package authz

import (
	"context"
	"errors"

	"github.com/marlowe-systems/aegis-core/internal/audit"
	"github.com/marlowe-systems/aegis-core/internal/user"
)

// Engine decides whether an actor may perform an action on a resource.
// It holds no persisted state: decisions come from the role permission
// table, the ownership relation the caller supplies, and the actor's
// current account status. The engine never writes audit events itself;
// callers pass the decision to the trail, which keeps the engine
// independently testable.
type Engine struct {
	users user.Lookup
}

// NewEngine creates an authorization engine.
func NewEngine(users user.Lookup) *Engine {
	return &Engine{users: users}
}

// Authorize is total over its input domain: malformed actors, unknown
// roles, and unknown actions all produce a denial with a reason, never a
// panic or a validation error. The only error it returns is a storage
// failure from the user lookup, which must surface hard because a security
// decision cannot default to allow under ambiguity.
func (e *Engine) Authorize(ctx context.Context, actor Actor, resource Resource, action string) (Decision, error) {
	d := Decision{
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		ResourceType: resource.Type,
		ResourceID:   resource.ID,
		Action:       action,
		RiskLevel:    audit.RiskLow,
	}

	if actor.ID == "" || actor.Role == "" {
		return deny(d, "invalid session data", audit.RiskMedium), nil
	}

	// The role on the actor comes from a session resolved some time ago;
	// the account's current status is authoritative.
	acct, err := e.users.GetByID(ctx, actor.ID)
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		return d, err
	}
	if acct == nil || !acct.IsActive() {
		return deny(d, "invalid session data", audit.RiskMedium), nil
	}

	perm := lookupPermission(actor.Role)
	owner := resource.OwnerID

	switch resource.Type {
	case ResourceAuditLog:
		if action != ActionRead {
			return deny(d, "unknown action/resource", audit.RiskLow), nil
		}
		if actor.Role != roleAdmin {
			return deny(d, "audit log is admin-only", audit.RiskLow), nil
		}
		return grant(d, "admin audit access"), nil

	case ResourceSession:
		if owner == actor.ID {
			return grant(d, "own session"), nil
		}
		if actor.Role == roleAdmin {
			return grant(d, "admin session access"), nil
		}
		// Probing another user's session is worth a closer look.
		return deny(d, "not session owner", audit.RiskMedium), nil

	case ResourceUser:
		if owner == "" {
			owner = resource.ID
		}
		return e.authorizeUser(d, actor, owner, action, perm), nil

	default:
		return deny(d, "unknown action/resource", audit.RiskLow), nil
	}
}

// authorizeUser applies the per-action rules for user records.
func (e *Engine) authorizeUser(d Decision, actor Actor, owner, action string, perm permission) Decision {
	isOwner := owner == actor.ID

	switch action {
	case ActionRead:
		if isOwner {
			return grant(d, "own record")
		}
		if perm.readOthers {
			return grant(d, "role grants read")
		}
		return deny(d, "insufficient role", audit.RiskLow)

	case ActionUpdate:
		if isOwner {
			return grant(d, "own record")
		}
		// Cross-user update is admin-only regardless of the table's
		// modifyOthers flag; see permissionTable.
		if actor.Role == roleAdmin {
			return grant(d, "admin update")
		}
		return deny(d, "cross-user update is admin-only", audit.RiskLow)

	case ActionDelete:
		// Self-deletion is always denied, admins included, to avoid
		// irrecoverable lockout.
		if isOwner {
			return deny(d, "self-deletion denied", audit.RiskMedium)
		}
		if actor.Role == roleAdmin && perm.deleteOthers {
			return grant(d, "admin delete")
		}
		return deny(d, "deletion is admin-only", audit.RiskLow)

	default:
		return deny(d, "unknown action/resource", audit.RiskLow)
	}
}

func grant(d Decision, reason string) Decision {
	d.Granted = true
	d.Reason = reason
	return d
}

func deny(d Decision, reason string, risk audit.RiskLevel) Decision {
	d.Granted = false
	d.Reason = reason
	d.RiskLevel = risk
	return d
}
