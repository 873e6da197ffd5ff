package api

import (
	"encoding/json"
	"net/http"

	"github.com/marlowe-systems/aegis-core/internal/authz"
)

// authorizeRequest is the explicit authorization check payload.
type authorizeRequest struct {
	Resource authz.Resource `json:"resource"`
	Action   string         `json:"action"`
}

// handleAuthorize runs an access decision for the calling identity and
// returns it. The decision itself is the response; a denial is not an HTTP
// error here, since the caller asked a question rather than attempted an
// action.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Resource.Type == "" || req.Action == "" {
		writeBadRequest(w, "resource.type and action are required")
		return
	}

	identity := identityFrom(r.Context())

	decision, err := s.engine.Authorize(r.Context(),
		authz.Actor{ID: identity.UserID, Role: identity.Role},
		req.Resource, req.Action)
	if err != nil {
		s.logger.Error("authorization failed", "error", err)
		writeInternalError(w, "service unavailable")
		return
	}

	s.recordDecision(r, decision)
	writeJSON(w, http.StatusOK, decision)
}

// authorizeAction runs an access decision for a concrete resource access,
// records it, and writes the 403 when denied. It reports whether the
// handler may proceed.
func (s *Server) authorizeAction(w http.ResponseWriter, r *http.Request, resource authz.Resource, action string) bool {
	identity := identityFrom(r.Context())

	decision, err := s.engine.Authorize(r.Context(),
		authz.Actor{ID: identity.UserID, Role: identity.Role},
		resource, action)
	if err != nil {
		s.logger.Error("authorization failed", "error", err)
		writeInternalError(w, "service unavailable")
		return false
	}

	s.recordDecision(r, decision)

	if !decision.Granted {
		writeForbidden(w, decision.Reason)
		return false
	}
	return true
}

// recordDecision materializes an access decision into the audit trail,
// enriched with the request's client fingerprint.
func (s *Server) recordDecision(r *http.Request, decision authz.Decision) {
	event := decision.Event()
	fp := clientFingerprint(r)
	event.IPAddress = fp.IPAddress
	event.UserAgent = fp.UserAgent

	// A dropped event is already logged operationally by the trail.
	s.trail.Record(r.Context(), event)
}
