package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marlowe-systems/aegis-core/internal/authz"
	"github.com/marlowe-systems/aegis-core/internal/session"
)

// handleListSessions returns the actor's own active sessions. An admin may
// pass ?user_id= to review another user's sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	targetID := r.URL.Query().Get("user_id")
	if targetID == "" {
		targetID = identity.UserID
	}

	if !s.authorizeAction(w, r, authz.Resource{
		Type:    authz.ResourceSession,
		ID:      targetID,
		OwnerID: targetID,
	}, authz.ActionRead) {
		return
	}

	sessions, err := s.sessions.ListActive(r.Context(), targetID)
	if err != nil {
		s.logger.Error("session list failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleRevokeSession ends one session by token. The actor must own the
// session or be an admin.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	identity := identityFrom(r.Context())

	// Resolve ownership before deciding access. An unknown token gets a
	// 404 only after the actor proves they could have accessed it, so the
	// endpoint cannot be used to probe which tokens exist.
	target, err := s.sessions.Owner(r.Context(), token)
	if err != nil {
		s.logger.Error("session lookup failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	ownerID := target
	if ownerID == "" {
		// Treat unknown tokens as self-owned for the access check.
		ownerID = identity.UserID
	}

	if !s.authorizeAction(w, r, authz.Resource{
		Type:    authz.ResourceSession,
		ID:      token,
		OwnerID: ownerID,
	}, authz.ActionDelete) {
		return
	}

	if target == "" {
		writeNotFound(w, "session not found")
		return
	}

	reason := session.ReasonLogout
	if target != identity.UserID {
		reason = session.ReasonAdminRevoked
	}

	changed, err := s.sessions.Invalidate(r.Context(), token, reason)
	if err != nil {
		s.logger.Error("session revoke failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": changed})
}
